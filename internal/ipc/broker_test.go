package ipc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/srg/inoli/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type BrokerTestSuite struct {
	suite.Suite
	helper *testutils.TestHelper
	broker *Broker
	path   string
	ctx    context.Context
	cancel context.CancelFunc
	served chan error
}

func (s *BrokerTestSuite) SetupTest() {
	s.helper = testutils.NewTestHelper(s.T())
	listener, path := s.helper.Listen()
	s.path = path
	s.broker = New(listener, Options{QueueSize: 4}, s.helper.Logger)
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.served = make(chan error, 1)
	go func() { _ = s.broker.Transmit(s.ctx) }()
	go func() { s.served <- s.broker.Serve(s.ctx) }()
}

func (s *BrokerTestSuite) TearDownTest() {
	s.cancel()
	select {
	case err := <-s.served:
		s.NoError(err)
	case <-time.After(2 * time.Second):
		s.Fail("broker did not stop")
	}
}

func (s *BrokerTestSuite) dial() net.Conn {
	conn, err := net.Dial("unix", s.path)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = conn.Close() })
	return conn
}

func (s *BrokerTestSuite) client() (*Client, <-chan Message) {
	c := NewClient(s.dial(), s.helper.Logger)
	return c, c.Messages(s.ctx)
}

func (s *BrokerTestSuite) awaitClients(n int) {
	s.Require().Eventually(func() bool { return s.broker.Clients() == n }, 2*time.Second, 5*time.Millisecond)
}

func (s *BrokerTestSuite) receive(ch <-chan Message) Message {
	select {
	case m, ok := <-ch:
		s.Require().True(ok, "message stream closed")
		return m
	case <-time.After(2 * time.Second):
		s.FailNow("timed out waiting for message")
	}
	return Message{}
}

func (s *BrokerTestSuite) command() Command {
	select {
	case cmd := <-s.broker.Commands():
		return cmd
	case <-time.After(2 * time.Second):
		s.FailNow("timed out waiting for command")
	}
	return Command{}
}

func (s *BrokerTestSuite) TestMessengersReachEveryClient() {
	_, first := s.client()
	_, second := s.client()
	s.awaitClients(2)

	battery := make(chan Message, 1)
	s.broker.AddMessenger(s.ctx, "battery", battery)
	battery <- BatteryMessage(77)

	s.Equal(BatteryMessage(77), s.receive(first))
	s.Equal(BatteryMessage(77), s.receive(second))

	// messengers can be added after clients attached
	steps := make(chan Message, 1)
	s.broker.AddMessenger(s.ctx, "steps", steps)
	steps <- StepsMessage(500)

	s.Equal(StepsMessage(500), s.receive(first))
	s.Equal(StepsMessage(500), s.receive(second))
}

func (s *BrokerTestSuite) TestLateClientGetsLatestMessage() {
	s.Require().NoError(s.broker.Publish(s.ctx, HeartrateMessage(61)))
	s.Require().Eventually(func() bool {
		_, v := s.broker.slot.Load()
		return v == 1
	}, 2*time.Second, 5*time.Millisecond)

	_, messages := s.client()
	s.Equal(HeartrateMessage(61), s.receive(messages))
}

func (s *BrokerTestSuite) TestCommandsFromClients() {
	conn := s.dial()

	_, err := conn.Write(append(frame(0xFF, 0x00), frame(0x53, 0x00)...))
	s.Require().NoError(err)
	s.Equal(Command{Kind: KindBattery, Action: Get}, s.command())

	// a frame split across writes
	whole := frame(0x50, 0x01, 0x0A, 0x00, 0x00, 0x00)
	_, err = conn.Write(whole[:4])
	s.Require().NoError(err)
	time.Sleep(20 * time.Millisecond)
	_, err = conn.Write(whole[4:])
	s.Require().NoError(err)
	s.Equal(Command{Kind: KindSteps, Action: Set, Steps: 10}, s.command())

	c := NewClient(s.dial(), s.helper.Logger)
	s.Require().NoError(c.Send(Command{Kind: KindAlert, Action: Set, Level: 2}))
	s.Equal(KindAlert, s.command().Kind)
}

func (s *BrokerTestSuite) TestQueueOverwritesOldestCommands() {
	c := NewClient(s.dial(), s.helper.Logger)
	for i := uint32(1); i <= 6; i++ {
		s.Require().NoError(c.Send(Command{Kind: KindSteps, Action: Set, Steps: i}))
	}

	s.Require().Eventually(func() bool { return s.broker.QueueMetrics().Written == 6 }, 2*time.Second, 5*time.Millisecond)
	s.Equal(int64(2), s.broker.QueueMetrics().Overwritten)
	s.Equal(uint32(3), s.command().Steps, "the two oldest commands were overwritten")
}

func (s *BrokerTestSuite) TestClientDisconnectIsIsolated() {
	leaving := s.dial()
	_, staying := s.client()
	s.awaitClients(2)

	s.Require().NoError(leaving.Close())
	s.awaitClients(1)

	s.Require().NoError(s.broker.Publish(s.ctx, BatteryMessage(12)))
	s.Equal(BatteryMessage(12), s.receive(staying))
}

func (s *BrokerTestSuite) TestServeClosesQueueOnShutdown() {
	s.dial()
	s.awaitClients(1)
	s.cancel()

	s.Require().Eventually(func() bool {
		select {
		case _, ok := <-s.broker.Commands():
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
	s.Zero(s.broker.Clients())
}

func TestBrokerTestSuite(t *testing.T) {
	suite.Run(t, new(BrokerTestSuite))
}

func TestClientMessagesEndWithConnection(t *testing.T) {
	helper := testutils.NewTestHelper(t)
	server, conn := net.Pipe()
	c := NewClient(conn, helper.Logger)
	messages := c.Messages(context.Background())

	go func() {
		frame, _ := StepsMessage(9).MarshalBinary()
		_, _ = server.Write(append([]byte{'M', 'S', 'G', 99}, frame...))
		_ = server.Close()
	}()

	var got []Message
	for m := range messages {
		got = append(got, m)
	}
	assert.Equal(t, []Message{StepsMessage(9)}, got)
}

func TestDialMissingSocket(t *testing.T) {
	helper := testutils.NewTestHelper(t)
	_, err := Dial(context.Background(), helper.SocketPath(), helper.Logger)
	require.Error(t, err)
}
