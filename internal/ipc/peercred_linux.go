//go:build linux

package ipc

import (
	"net"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// peerCredentials returns the pid and uid of a unix socket peer.
func peerCredentials(conn net.Conn) (logrus.Fields, bool) {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return nil, false
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return nil, false
	}

	var cred *unix.Ucred
	var credErr error
	if err := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil || credErr != nil {
		return nil, false
	}
	return logrus.Fields{"peer_pid": cred.Pid, "peer_uid": cred.Uid}, true
}
