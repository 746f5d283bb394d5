package langguard_test

import (
	"context"
	"errors"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/vietforeign-service/internal/langguard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	vietnameseText = "Xin chào các bạn, hôm nay tôi muốn kể về những món ăn truyền thống của người Việt Nam."
	englishText    = "Hello everyone, today I would like to talk about the weather and the traffic in our city."
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	lg, err := logger.New(t.TempDir(), "langguard-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = lg.Close() })

	return lg
}

type stubDetector struct {
	code       string
	shouldFail bool
	shouldPan  bool
	calls      int
}

func (s *stubDetector) Detect(string) (string, error) {
	s.calls++

	if s.shouldPan {
		panic("model file missing")
	}

	if s.shouldFail {
		return "", errors.New("detector offline")
	}

	return s.code, nil
}

func TestClassify_TooShort(t *testing.T) {
	t.Parallel()

	detector := &stubDetector{code: "VI"}
	guard := langguard.New(detector, newTestLogger(t))

	for _, text := range []string{"", "   ", "xin chào", "  123456789  "} {
		ok, code := guard.Classify(context.Background(), text)
		assert.False(t, ok, text)
		assert.Equal(t, langguard.CodeTooShort, code, text)
	}

	assert.Zero(t, detector.calls)
}

func TestClassify_DetectorFailures(t *testing.T) {
	t.Parallel()

	for _, detector := range []*stubDetector{{shouldFail: true}, {shouldPan: true}} {
		guard := langguard.New(detector, newTestLogger(t))

		ok, code := guard.Classify(context.Background(), vietnameseText)
		assert.False(t, ok)
		assert.Equal(t, langguard.CodeDetectionFailed, code)
	}
}

func TestClassify_AcceptedCodes(t *testing.T) {
	t.Parallel()

	for code, want := range map[string]bool{"VI": true, "vie": true, "vi-VN": true, "EN": false, "FR": false} {
		guard := langguard.New(&stubDetector{code: code}, newTestLogger(t))

		ok, detected := guard.Classify(context.Background(), vietnameseText)
		assert.Equal(t, want, ok, code)
		assert.Equal(t, code, detected)
	}
}

func TestWhatlangDetector(t *testing.T) {
	t.Parallel()

	guard := langguard.New(langguard.Detector{}, newTestLogger(t))

	ok, code := guard.Classify(context.Background(), vietnameseText)
	assert.True(t, ok)
	assert.Equal(t, "VI", code)

	ok, code = guard.Classify(context.Background(), englishText)
	assert.False(t, ok)
	assert.Equal(t, "EN", code)
}
