package platform

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"device-report/geolocation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// fakeGPSD accepts one connection, waits for ?WATCH and writes lines.
func fakeGPSD(t *testing.T, lines ...string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		fmt.Fprintln(conn, `{"class":"VERSION","release":"3.25"}`)
		cmd, err := bufio.NewReader(conn).ReadString('\n')
		if err != nil || !strings.HasPrefix(cmd, "?WATCH=") {
			return
		}
		for _, l := range lines {
			if _, err := fmt.Fprintln(conn, l); err != nil {
				return
			}
		}
		// hold the connection open until the client cancels
		buf := make([]byte, 1)
		conn.Read(buf)
	}()
	return ln.Addr().String()
}

func TestGPSDHighAccuracyNeeds3DFix(t *testing.T) {
	defer goleak.VerifyNone(t)

	addr := fakeGPSD(t,
		`{"class":"TPV","mode":2,"lat":1.5,"lon":2.5,"eph":300}`,
		`{"class":"SKY","satellites":[]}`,
		`{"class":"TPV","mode":3,"time":"2024-05-01T10:00:00.000Z","lat":43.8,"lon":18.4,"eph":12.5}`,
	)
	g := NewGPSD(addr)

	pos, err := g.CurrentPosition(context.Background(), geolocation.Options{HighAccuracy: true, Timeout: 2 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, 43.8, pos.Latitude)
	assert.Equal(t, 18.4, pos.Longitude)
	assert.Equal(t, 12.5, pos.Accuracy)
	assert.Equal(t, 2024, pos.Timestamp.Year())
}

func TestGPSDStandardAccepts2DFix(t *testing.T) {
	defer goleak.VerifyNone(t)

	addr := fakeGPSD(t,
		`{"class":"TPV","mode":1}`,
		`{"class":"TPV","mode":2,"lat":1.5,"lon":2.5,"epx":40,"epy":60}`,
	)
	sub, err := NewGPSD(addr).Watch(context.Background(), geolocation.Options{})
	require.NoError(t, err)

	pos, err := geolocation.First(context.Background(), sub, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1.5, pos.Latitude)
	assert.Equal(t, 60.0, pos.Accuracy)
}

func TestGPSDNoFixTimesOut(t *testing.T) {
	defer goleak.VerifyNone(t)

	addr := fakeGPSD(t, `{"class":"TPV","mode":2,"lat":1.5,"lon":2.5}`)
	_, err := NewGPSD(addr).CurrentPosition(context.Background(), geolocation.Options{HighAccuracy: true, Timeout: 100 * time.Millisecond})
	require.Error(t, err)
	assert.True(t, geolocation.IsTimeout(err))
}

func TestGPSDUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = NewGPSD(addr).Watch(context.Background(), geolocation.Options{})
	require.Error(t, err)
	assert.Equal(t, "Position unavailable (no signal)", geolocation.Classify(err).Error())
}
