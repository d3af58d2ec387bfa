package node

import (
	"bytes"
	"testing"
)

func TestCmdStringTrimsPadding(t *testing.T) {
	if got := cmdString([]byte(cmdTx)); got != "tx" {
		t.Fatalf("expected %q, got %q", "tx", got)
	}
	if got := cmdString([]byte(cmdVersion)); got != "vers" {
		t.Fatalf("expected %q, got %q", "vers", got)
	}
}

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello world")

	if err := writeFrame(&buf, cmdBlock, payload); err != nil {
		t.Fatal(err)
	}

	cmd, got, err := readFrame(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if cmd != "blc" {
		t.Fatalf("expected command %q, got %q", "blc", cmd)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("expected payload %q, got %q", payload, got)
	}
}

func TestGobEncodeDecodeRoundTrip(t *testing.T) {
	msg := versionMsg{BestHeight: 7, AddrFrom: "localhost:3001"}

	data, err := gobEncode(msg)
	if err != nil {
		t.Fatal(err)
	}
	var got versionMsg
	if err := gobDecode(data, &got); err != nil {
		t.Fatal(err)
	}
	if got != msg {
		t.Fatalf("expected %+v, got %+v", msg, got)
	}
}
