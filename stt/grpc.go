package stt

import (
	"context"
	"errors"
	"io"
)

// bidiStream is the client side of a generated bidirectional gRPC stream.
type bidiStream[Req, Resp any] interface {
	Send(Req) error
	Recv() (Resp, error)
	CloseSend() error
}

// grpcTransport adapts a bidirectional recognition stream to a session.
type grpcTransport[Req, Resp any] struct {
	stream bidiStream[Req, Resp]
	cancel context.CancelFunc
	chunk  func(data []byte) Req
	text   func(resp Resp) (string, error)
}

func (t *grpcTransport[Req, Resp]) sendAudio(data []byte) error {
	err := t.stream.Send(t.chunk(data))
	if errors.Is(err, io.EOF) {
		// The server ended the stream; its status arrives through Recv.
		return nil
	}
	return err
}

func (t *grpcTransport[Req, Resp]) sendEnd() error {
	return t.stream.CloseSend()
}

func (t *grpcTransport[Req, Resp]) recv() (string, error) {
	resp, err := t.stream.Recv()
	if err != nil {
		return "", err
	}
	return t.text(resp)
}

func (t *grpcTransport[Req, Resp]) close() error {
	t.cancel()
	return nil
}
