package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"path"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
)

// FTPConn is the part of an FTP session the pipeline drives.
// *ftp.ServerConn satisfies it.
type FTPConn interface {
	Login(user, password string) error
	ChangeDir(path string) error
	MakeDir(path string) error
	Stor(path string, r io.Reader) error
	Quit() error
}

// FTPDialer opens one control connection to addr.
type FTPDialer func(ctx context.Context, addr string) (FTPConn, error)

// DialFTP connects with classic passive mode. Every socket it opens, control
// and data alike, inherits the context deadline and is cut when ctx ends.
func DialFTP(ctx context.Context, addr string) (FTPConn, error) {
	dialer := &net.Dialer{}
	conn, err := ftp.Dial(addr,
		ftp.DialWithDisabledEPSV(true),
		ftp.DialWithDialFunc(func(network, address string) (net.Conn, error) {
			c, err := dialer.DialContext(ctx, network, address)
			if err != nil {
				return nil, err
			}
			if deadline, ok := ctx.Deadline(); ok {
				_ = c.SetDeadline(deadline)
			}
			stop := context.AfterFunc(ctx, func() {
				_ = c.SetDeadline(time.Now())
			})
			return &deadlineConn{Conn: c, stop: stop}, nil
		}),
	)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type deadlineConn struct {
	net.Conn
	stop func() bool
}

func (c *deadlineConn) Close() error {
	c.stop()
	return c.Conn.Close()
}

func (r *Relayer) sendFTP(ctx context.Context, cfg BackendConfig, req UploadRequest, data []byte) (remote, *Error) {
	dir, err := remoteDir(cfg, r.now())
	if err != nil {
		return remote{}, fail(ProtocolError, "path template: %v", err)
	}
	remotePath := path.Join(dir, req.BaseName())
	remoteURL, err := objectURL(cfg, cfg.BaseURL, remotePath)
	if err != nil {
		return remote{}, fail(ProtocolError, "%v", err)
	}

	conn, err := r.dialFTP(ctx, cfg.ftpAddr())
	if err != nil {
		return remote{}, fail(TransportError, "connect %s: %v", cfg.ftpAddr(), err)
	}
	defer func() {
		_ = conn.Quit()
	}()

	if err := conn.Login(cfg.Username, cfg.Password); err != nil {
		return remote{}, fail(TransportError, "login to %s: %v", cfg.ftpAddr(), err)
	}
	if err := ensureDir(conn, dir); err != nil {
		return remote{}, classifyFTP(err)
	}
	if err := conn.Stor(remotePath, bytes.NewReader(data)); err != nil {
		return remote{}, classifyFTP(fmt.Errorf("stor %s: %w", remotePath, err))
	}
	return remote{url: remoteURL}, nil
}

// ensureDir creates dir one segment at a time. A segment that cannot be
// created but can be entered already exists.
func ensureDir(conn FTPConn, dir string) error {
	current := ""
	for _, segment := range strings.Split(strings.Trim(dir, "/"), "/") {
		if segment == "" {
			continue
		}
		current += "/" + segment
		if err := conn.ChangeDir(current); err == nil {
			continue
		}
		if err := conn.MakeDir(current); err != nil {
			if cdErr := conn.ChangeDir(current); cdErr != nil {
				return fmt.Errorf("mkdir %s: %w", current, err)
			}
		}
	}
	return nil
}

// classifyFTP treats permanent negative replies as the server's refusal and
// everything else as a transport problem.
func classifyFTP(err error) *Error {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) && protoErr.Code >= 500 {
		return fail(BackendRejected, "%v", err)
	}
	return fail(TransportError, "%v", err)
}
