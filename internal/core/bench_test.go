package core

import (
	"context"
	"testing"
)

func benchmarkRoomBroadcast(b *testing.B, recipients int) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := NewDirectory("")
	discard := WriterFunc(func(context.Context, string) error { return nil })

	for i := 0; i < recipients; i++ {
		sess := NewSession(dir, SessionOptions{}, nil)
		sess.Open(ctx, discard)
		sess.Handle(SetUsername{Name: "client"})
		defer sess.Close()
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		dir.Broadcast(DefaultRoom, "payload")
	}
}

func BenchmarkRoomBroadcast_10(b *testing.B)  { benchmarkRoomBroadcast(b, 10) }
func BenchmarkRoomBroadcast_100(b *testing.B) { benchmarkRoomBroadcast(b, 100) }
func BenchmarkRoomBroadcast_500(b *testing.B) { benchmarkRoomBroadcast(b, 500) }
