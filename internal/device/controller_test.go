package device

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/adverant/nexus/screenscan-worker/internal/errors"
)

// scriptedRunner answers by the joined args and records every call
type scriptedRunner struct {
	replies map[string]string
	fail    map[string]bool
	calls   []string
}

func (r *scriptedRunner) Run(_ context.Context, args ...string) ([]byte, error) {
	key := strings.Join(args, " ")
	r.calls = append(r.calls, key)
	if r.fail[key] {
		return []byte("error: device offline"), errors.New("exit status 1")
	}
	return []byte(r.replies[key]), nil
}

func TestControllerCommands(t *testing.T) {
	ctx := context.Background()
	r := &scriptedRunner{replies: map[string]string{}}
	c := newController(r, "emulator-5554")

	require.NoError(t, c.Screenshot(ctx, "/sdcard/screen-1.png"))
	require.NoError(t, c.Tap(ctx, 155, 1931))
	require.NoError(t, c.Pull(ctx, "/sdcard/screen-1.png", "/out/sources/1.png"))
	require.NoError(t, c.Remove(ctx, "/sdcard/screen-1.png"))

	assert.Equal(t, []string{
		"-s emulator-5554 shell screencap -p /sdcard/screen-1.png",
		"-s emulator-5554 shell input tap 155 1931",
		"-s emulator-5554 pull /sdcard/screen-1.png /out/sources/1.png",
		"-s emulator-5554 shell rm -f /sdcard/screen-1.png",
	}, r.calls)
}

func TestControllerWithoutSerial(t *testing.T) {
	r := &scriptedRunner{replies: map[string]string{"shell echo hi": "hi\n"}}
	c := newController(r, "")

	out, err := c.Shell(context.Background(), "echo", "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi", out)
	assert.Equal(t, []string{"shell echo hi"}, r.calls)
}

func TestControllerErrors(t *testing.T) {
	ctx := context.Background()
	r := &scriptedRunner{fail: map[string]bool{
		"shell input tap 1 2": true,
		"pull /a /b":          true,
	}}
	c := newController(r, "")

	err := c.Tap(ctx, 1, 2)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrorDeviceCommandFailed))
	assert.Contains(t, err.Error(), "device offline")

	err = c.Pull(ctx, "/a", "/b")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrorDevicePullFailed))
}

func TestConnect(t *testing.T) {
	ctx := context.Background()

	t.Run("tcp device", func(t *testing.T) {
		r := &scriptedRunner{replies: map[string]string{
			"connect 127.0.0.1:5555":      "already connected to 127.0.0.1:5555",
			"-s 127.0.0.1:5555 get-state": "device\n",
		}}
		c := newController(r, "127.0.0.1:5555")
		require.NoError(t, c.Connect(ctx))
		assert.Equal(t, []string{"connect 127.0.0.1:5555", "-s 127.0.0.1:5555 get-state"}, r.calls)
	})

	t.Run("usb device", func(t *testing.T) {
		r := &scriptedRunner{replies: map[string]string{"-s R58M get-state": "device"}}
		c := newController(r, "R58M")
		require.NoError(t, c.Connect(ctx))
		assert.Equal(t, []string{"-s R58M get-state"}, r.calls)
	})

	t.Run("unauthorized", func(t *testing.T) {
		r := &scriptedRunner{replies: map[string]string{"get-state": "unauthorized"}}
		c := newController(r, "")
		err := c.Connect(ctx)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrorDeviceConnectFailed))
		assert.Contains(t, err.Error(), "unauthorized")
	})

	t.Run("connect refused", func(t *testing.T) {
		r := &scriptedRunner{replies: map[string]string{
			"connect 10.0.0.2:5555": "failed to connect to 10.0.0.2:5555",
		}}
		c := newController(r, "10.0.0.2:5555")
		err := c.Connect(ctx)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrorDeviceConnectFailed))
	})
}

func TestScreenSize(t *testing.T) {
	r := &scriptedRunner{replies: map[string]string{
		"shell wm size": "Physical size: 1080x2400\nOverride size: 720x1600\n",
	}}
	w, h, err := newController(r, "").ScreenSize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 720, w)
	assert.Equal(t, 1600, h)

	r.replies["shell wm size"] = "garbage"
	_, _, err = newController(r, "").ScreenSize(context.Background())
	assert.True(t, apperrors.IsCode(err, apperrors.ErrorDeviceCommandFailed))
}
