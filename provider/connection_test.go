package provider

import (
	"encoding/binary"
	"errors"
	"net"
	"testing"
	"time"

	"mprpc/wire"
)

func TestReadFramePartialChunks(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	frame, err := wire.Encode("UserService", "Login", []byte("0123456789"))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	go func() {
		for i := 0; i < len(frame); i += 5 {
			end := i + 5
			if end > len(frame) {
				end = len(frame)
			}
			client.Write(frame[i:end])
			time.Sleep(2 * time.Millisecond)
		}
	}()

	hdr, body, err := readFrame(server)
	if err != nil {
		t.Fatalf("readFrame failed: %v", err)
	}
	if hdr.ServiceName != "UserService" || hdr.MethodName != "Login" {
		t.Fatalf("header mismatch: %+v", hdr)
	}
	if string(body) != "0123456789" {
		t.Fatalf("body mismatch: %q", body)
	}
}

func TestReadFrameMalformedHeaderLen(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	go func() {
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, 0xFFFFFFFF)
		client.Write(buf)
		client.Close()
	}()

	_, _, err := readFrame(server)
	if !errors.Is(err, wire.ErrMalformedFrame) {
		t.Fatalf("expect ErrMalformedFrame, got %v", err)
	}
}

func TestReadFrameConnectionClosedEarly(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	go func() {
		client.Write([]byte{1, 2})
		client.Close()
	}()

	_, _, err := readFrame(server)
	if err == nil {
		t.Fatal("expect an error when the connection closes mid-frame")
	}
}
