package sender

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rescp17/noftp/pkg/fileInfo"
	"github.com/rescp17/noftp/pkg/protoerr"
	"github.com/rescp17/noftp/pkg/receiver"
	"github.com/rescp17/noftp/pkg/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 10 * time.Second

func testConfig() *transfer.TransferConfig {
	cfg := transfer.DefaultTransferConfig()
	cfg.DialTimeout = 2 * time.Second
	cfg.IdleTimeout = 5 * time.Second
	return cfg
}

func startReceiver(t *testing.T) (*receiver.Server, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "downloads")
	srv := receiver.NewServer(receiver.Settings{Host: "127.0.0.1", DownloadPath: root}, testConfig())
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(srv.Stop)
	return srv, root
}

func writeSource(t *testing.T, dir, name string, content []byte) fileInfo.SourceFile {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, content, 0o644))
	files, err := fileInfo.Enumerate(p)
	require.NoError(t, err)
	return files[0]
}

func testData(n int, seed byte) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i*31) ^ seed ^ byte(i>>13)
	}
	return data
}

func waitCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	t.Cleanup(cancel)
	return ctx
}

func TestClient_SendsSmallFile(t *testing.T) {
	srv, root := startReceiver(t)
	src := writeSource(t, t.TempDir(), "hello.txt", []byte("0123456789"))

	client := NewClient(testConfig())
	defer client.Close()

	res := client.Enqueue(Job{Addr: srv.Addr().String(), Source: src}).Wait(waitCtx(t))
	require.NoError(t, res.Err)
	assert.NotEmpty(t, res.Job.ID)
	assert.Equal(t, transfer.ChunkStateDone, res.Progress.State)
	assert.Equal(t, 1, res.Progress.ChunksSent)
	assert.Equal(t, int64(10), res.Progress.BytesSent)

	got, err := os.ReadFile(filepath.Join(root, "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(got))
}

func TestClient_SendsChunkedFile(t *testing.T) {
	srv, root := startReceiver(t)
	results := srv.Results()
	data := testData(3_000_000, 0x5A)
	src := writeSource(t, t.TempDir(), "big.bin", data)

	cfg := testConfig()
	cfg.PacketSize = 2_000_000
	client := NewClient(cfg)
	defer client.Close()

	res := client.Enqueue(Job{Addr: srv.Addr().String(), Source: src}).Wait(waitCtx(t))
	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.Progress.ChunksSent)
	assert.Equal(t, int64(3_000_000), res.Progress.BytesSent)

	first, second := <-results, <-results
	assert.Equal(t, transfer.CreateFileChunked, first.Type)
	assert.Equal(t, int64(2_000_000), first.Bytes)
	assert.Equal(t, transfer.FillFileChunked, second.Type)
	assert.Equal(t, int64(1_000_000), second.Bytes)
	assert.True(t, second.Complete)

	got, err := os.ReadFile(filepath.Join(root, "big.bin"))
	require.NoError(t, err)
	require.Len(t, got, len(data))
	assert.True(t, bytes.Equal(data, got))
}

func TestClient_HonoursConfiguredPacketBounds(t *testing.T) {
	srv, root := startReceiver(t)
	data := testData(5000, 3)
	src := writeSource(t, t.TempDir(), "small-packets.bin", data)

	cfg := testConfig()
	cfg.MinPacketSize = 1024
	cfg.PacketSize = 2048
	require.NoError(t, cfg.Validate())
	client := NewClient(cfg)
	defer client.Close()

	res := client.Enqueue(Job{Addr: srv.Addr().String(), Source: src}).Wait(waitCtx(t))
	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.Progress.ChunksSent)

	got, err := os.ReadFile(filepath.Join(root, "small-packets.bin"))
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got))
}

func TestClient_InvalidPacketSizeIsNotIOFailure(t *testing.T) {
	src := writeSource(t, t.TempDir(), "x.txt", []byte("x"))

	cfg := testConfig()
	cfg.PacketSize = cfg.MinPacketSize - 1
	client := NewClient(cfg)
	defer client.Close()

	res := client.Enqueue(Job{Addr: "127.0.0.1:1", Source: src}).Wait(waitCtx(t))
	assert.ErrorIs(t, res.Err, transfer.ErrInvalidPacketSize)
	assert.NotErrorIs(t, res.Err, protoerr.ErrIOFailure)
	assert.Equal(t, transfer.ChunkStateFailed, res.Progress.State)
}

func TestClient_QueueIsFIFO(t *testing.T) {
	srv, _ := startReceiver(t)
	results := srv.Results()
	dir := t.TempDir()

	cfg := testConfig()
	cfg.PacketSize = transfer.MinPacketSize
	client := NewClient(cfg)
	defer client.Close()

	var pending []*Pending
	var want []string
	for i := range 5 {
		name := fmt.Sprintf("file-%d.bin", i)
		src := writeSource(t, dir, name, testData(transfer.MinPacketSize*2+1+i, byte(i)))
		pending = append(pending, client.Enqueue(Job{Addr: srv.Addr().String(), Source: src}))
		want = append(want, name, name, name)
	}
	for _, p := range pending {
		require.NoError(t, p.Wait(waitCtx(t)).Err)
	}

	var got []string
	for range want {
		got = append(got, (<-results).Path)
	}
	assert.Equal(t, want, got, "chunks arrive job by job in enqueue order")
}

func TestClient_ConcurrentClients(t *testing.T) {
	srv, root := startReceiver(t)
	dir := t.TempDir()

	const clients = 8
	sources := make([][]byte, clients)
	var wg sync.WaitGroup
	errs := make(chan error, clients)

	for i := range clients {
		sources[i] = testData(100_000+i*7919, byte(i))
		src := writeSource(t, dir, fmt.Sprintf("client-%d.bin", i), sources[i])

		cfg := testConfig()
		cfg.PacketSize = 16 * 1024
		client := NewClient(cfg)
		t.Cleanup(client.Close)

		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- client.Enqueue(Job{Addr: srv.Addr().String(), Source: src}).Wait(waitCtx(t)).Err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for i, want := range sources {
		got, err := os.ReadFile(filepath.Join(root, fmt.Sprintf("client-%d.bin", i)))
		require.NoError(t, err)
		assert.True(t, bytes.Equal(want, got), "client %d", i)
	}
}

func TestClient_SendPathDirectory(t *testing.T) {
	srv, root := startReceiver(t)
	base := filepath.Join(t.TempDir(), "album")
	files := map[string][]byte{
		"a.txt":          []byte("alpha"),
		"nested/b.bin":   testData(20_000, 1),
		"nested/c/d.txt": {},
	}
	for rel, content := range files {
		p := filepath.Join(base, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, content, 0o644))
	}

	cfg := testConfig()
	cfg.PacketSize = transfer.MinPacketSize
	client := NewClient(cfg)
	defer client.Close()

	results, err := client.SendPath(waitCtx(t), srv.Addr().String(), base)
	require.NoError(t, err)
	assert.Len(t, results, 3)

	for rel, content := range files {
		got, err := os.ReadFile(filepath.Join(root, "album", filepath.FromSlash(rel)))
		require.NoError(t, err, rel)
		assert.Equal(t, len(content), len(got), rel)
		assert.True(t, bytes.Equal(content, got), rel)
	}
}

func TestClient_SendPathMissing(t *testing.T) {
	client := NewClient(testConfig())
	defer client.Close()

	_, err := client.SendPath(context.Background(), "127.0.0.1:1", filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestClient_ConnectFailure(t *testing.T) {
	src := writeSource(t, t.TempDir(), "f.txt", []byte("data"))
	client := NewClient(testConfig())
	defer client.Close()

	res := client.Enqueue(Job{Addr: closedAddr(t), Source: src}).Wait(waitCtx(t))
	assert.ErrorIs(t, res.Err, protoerr.ErrIOFailure)
	assert.Equal(t, transfer.ChunkStateFailed, res.Progress.State)
	assert.Zero(t, res.Progress.ChunksSent)
}

func TestClient_FailureAbortsRemainingChunks(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	// accept exactly one chunk, then stop listening
	var received bytes.Buffer
	served := make(chan struct{})
	go func() {
		defer close(served)
		conn, err := ln.Accept()
		_ = ln.Close()
		if err != nil {
			return
		}
		_, _ = io.Copy(&received, conn)
		_ = conn.Close()
	}()

	src := writeSource(t, t.TempDir(), "three.bin", testData(transfer.MinPacketSize*2+1, 9))
	cfg := testConfig()
	cfg.PacketSize = transfer.MinPacketSize
	client := NewClient(cfg)
	defer client.Close()

	res := client.Enqueue(Job{Addr: ln.Addr().String(), Source: src}).Wait(waitCtx(t))
	<-served

	assert.ErrorIs(t, res.Err, protoerr.ErrIOFailure)
	assert.Equal(t, transfer.ChunkStateFailed, res.Progress.State)
	assert.Equal(t, 1, res.Progress.ChunksSent, "the first chunk is not rolled back")
	assert.Equal(t, 3, res.Progress.TotalChunks)

	p, err := transfer.ReadPreamble(&received, transfer.DefaultMaxSubheaderSize)
	require.NoError(t, err)
	assert.Equal(t, transfer.CreateFileChunked, p.SubheaderType)
	assert.Equal(t, transfer.MinPacketSize, received.Len())
}

func TestClient_CloseDrainsQueue(t *testing.T) {
	srv, root := startReceiver(t)
	dir := t.TempDir()
	client := NewClient(testConfig())

	var pending []*Pending
	for i := range 3 {
		src := writeSource(t, dir, fmt.Sprintf("q%d.txt", i), []byte{byte('a' + i)})
		pending = append(pending, client.Enqueue(Job{Addr: srv.Addr().String(), Source: src}))
	}
	client.Close()

	for _, p := range pending {
		select {
		case <-p.Done():
			require.NoError(t, p.Wait(context.Background()).Err)
		default:
			t.Fatal("Close returned before the queue was drained")
		}
	}
	_, err := os.Stat(filepath.Join(root, "q2.txt"))
	assert.NoError(t, err)

	late := client.Enqueue(Job{Addr: srv.Addr().String()})
	assert.ErrorIs(t, late.Wait(context.Background()).Err, ErrClientClosed)
}

func TestClient_AbortCancelsInFlight(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	// accept and hold connections open without ever closing them
	var held []net.Conn
	var mu sync.Mutex
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			held = append(held, conn)
			mu.Unlock()
		}
	}()
	defer func() {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range held {
			_ = c.Close()
		}
	}()

	cfg := testConfig()
	cfg.IdleTimeout = 0
	client := NewClient(cfg)
	dir := t.TempDir()
	first := client.Enqueue(Job{Addr: ln.Addr().String(), Source: writeSource(t, dir, "1.txt", []byte("x"))})
	second := client.Enqueue(Job{Addr: ln.Addr().String(), Source: writeSource(t, dir, "2.txt", []byte("y"))})
	time.Sleep(50 * time.Millisecond)

	aborted := make(chan struct{})
	go func() {
		client.Abort()
		close(aborted)
	}()
	select {
	case <-aborted:
	case <-time.After(waitTimeout):
		t.Fatal("Abort did not interrupt the in-flight chunk")
	}

	assert.Equal(t, protoerr.KindCancelled, protoerr.KindOf(first.Wait(context.Background()).Err))
	assert.ErrorIs(t, second.Wait(context.Background()).Err, context.Canceled)
}

func TestPending_WaitGivesUp(t *testing.T) {
	p := &Pending{job: Job{ID: "j"}, done: make(chan struct{})}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	res := p.Wait(ctx)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.Equal(t, "j", res.Job.ID)
}
