package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/autoledger/internal/capture"
	"github.com/hpungsan/autoledger/internal/errors"
	"github.com/hpungsan/autoledger/internal/extract"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func request(t *testing.T, s *CommandScreenshotter) capture.ScreenshotResult {
	t.Helper()
	ch := make(chan capture.ScreenshotResult, 1)
	s.RequestScreenshot(context.Background(), func(r capture.ScreenshotResult) { ch <- r })
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("screenshot callback never fired")
	}
	return capture.ScreenshotResult{}
}

func TestCommandScreenshotter_SavesPNG(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "screenshots")
	img := pngBytes(t, 4, 3)
	s := NewCommandScreenshotter([]string{"grim", "-"}, dir, time.Second,
		WithRunner(func(_ context.Context, argv []string) ([]byte, error) {
			require.Equal(t, []string{"grim", "-"}, argv)
			return img, nil
		}))

	require.True(t, s.Available())
	res := request(t, s)
	require.Empty(t, res.Code)
	require.True(t, strings.HasPrefix(res.Handle, dir))
	require.True(t, strings.HasSuffix(res.Handle, ".png"))

	data, err := os.ReadFile(res.Handle)
	require.NoError(t, err)
	require.Equal(t, img, data)
}

func TestCommandScreenshotter_MinInterval(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	img := pngBytes(t, 2, 2)
	s := NewCommandScreenshotter([]string{"shot"}, t.TempDir(), time.Second,
		WithNow(func() time.Time { return now }),
		WithRunner(func(context.Context, []string) ([]byte, error) { return img, nil }))

	require.Empty(t, request(t, s).Code)

	now = now.Add(500 * time.Millisecond)
	res := request(t, s)
	require.Equal(t, capture.FailIntervalTooShort, res.Code)
	require.True(t, res.Code.Retryable())

	now = now.Add(500 * time.Millisecond)
	require.Empty(t, request(t, s).Code)
}

func TestCommandScreenshotter_FailureCodes(t *testing.T) {
	tests := []struct {
		name string
		out  []byte
		err  error
		want capture.FailureCode
	}{
		{"missing binary", nil, exec.ErrNotFound, capture.FailNoAccess},
		{"permission", nil, os.ErrPermission, capture.FailNoAccess},
		{"command failed", nil, fmt.Errorf("exit status 1"), capture.FailInternal},
		{"empty output", []byte{}, nil, capture.FailNoHardwareBuffer},
		{"not a png", []byte("hello"), nil, capture.FailInvalidDisplay},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewCommandScreenshotter([]string{"shot"}, t.TempDir(), 0,
				WithRunner(func(context.Context, []string) ([]byte, error) { return tt.out, tt.err }))
			require.Equal(t, tt.want, s.capture(context.Background(), time.Now()).Code)
		})
	}
}

func TestCommandScreenshotter_Unavailable(t *testing.T) {
	require.False(t, NewCommandScreenshotter(nil, t.TempDir(), 0).Available())
	require.False(t, NewCommandScreenshotter([]string{""}, t.TempDir(), 0).Available())
}

func TestDecodeTree_Aliases(t *testing.T) {
	root, err := DecodeTree(strings.NewReader(`{
		"package": "com.bank",
		"children": [
			{"text": "Coffee Shop"},
			{"content_description": "-12.50"}
		]
	}`))
	require.NoError(t, err)
	require.Equal(t, "com.bank", root.SurfaceID)
	require.Equal(t, "Coffee Shop\n-12.50", extract.Extract(root))

	_, err = DecodeTree(strings.NewReader(`{"children": [`))
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestLoadTree_Missing(t *testing.T) {
	_, err := LoadTree(filepath.Join(t.TempDir(), "nope.json"))
	require.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestTreeSurface(t *testing.T) {
	s := NewTreeSurface(nil, true)
	require.True(t, s.Available())

	root, err := s.Foreground(context.Background())
	require.NoError(t, err)
	require.Nil(t, root)

	s.Publish(&extract.Node{SurfaceID: "com.shop"})
	root, err = s.Foreground(context.Background())
	require.NoError(t, err)
	require.Equal(t, "com.shop", root.SurfaceID)

	s.SetAvailable(false)
	require.False(t, s.Available())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Foreground(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestJSONPresenter(t *testing.T) {
	var buf bytes.Buffer
	p := NewJSONPresenter(&buf, nil)
	p.Present(context.Background(), capture.Outcome{
		Source:  capture.SourceHotkey,
		Reason:  "longpress",
		State:   capture.StateDelivered,
		Content: capture.Text{Text: "Coffee Shop"},
		At:      time.UnixMilli(1000),
	})

	var v map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &v))
	require.Equal(t, "text", v["kind"])
	require.Equal(t, "Coffee Shop", v["text"])
	require.Equal(t, "longpress", v["reason"])
	require.EqualValues(t, 1000, v["at"])
}
