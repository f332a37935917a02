package node

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"benor/internal/api"
	"benor/internal/consensus"
	"benor/internal/readiness"
)

type sentLog struct {
	mu   sync.Mutex
	msgs []consensus.Message
}

func (l *sentLog) Broadcast(msg consensus.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, msg)
}

func (l *sentLog) all() []consensus.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]consensus.Message(nil), l.msgs...)
}

func newTestServer(t *testing.T, faulty bool, barrier *readiness.Barrier) (*Server, *sentLog, chan struct{}) {
	t.Helper()
	sent := &sentLog{}
	engine, err := consensus.NewEngine(consensus.Config{NodeID: 0, N: 4, F: 1, Faulty: faulty}, sent)
	require.NoError(t, err)
	stopping := make(chan struct{})
	return NewServer(engine, barrier, consensus.One, stopping, nil), sent, stopping
}

func openBarrier(n int) *readiness.Barrier {
	b := readiness.NewBarrier(n)
	for id := 0; id < n; id++ {
		b.MarkReady(id)
	}
	return b
}

func TestServer_Status(t *testing.T) {
	live, _, _ := newTestServer(t, false, openBarrier(4))
	resp, err := live.Status(context.Background(), &emptypb.Empty{})
	require.NoError(t, err)
	assert.Equal(t, StatusLive, resp.GetValue())

	faulty, _, _ := newTestServer(t, true, openBarrier(4))
	_, err = faulty.Status(context.Background(), &emptypb.Empty{})
	require.Error(t, err)
	assert.Equal(t, codes.Unavailable, status.Code(err))
	assert.True(t, isFaultyStatus(err))
}

func TestServer_StartBroadcastsProposal(t *testing.T) {
	s, sent, _ := newTestServer(t, false, openBarrier(4))

	resp, err := s.Start(context.Background(), &emptypb.Empty{})
	require.NoError(t, err)
	assert.Equal(t, StartedReply, resp.GetValue())
	assert.Equal(t, []consensus.Message{consensus.NewPropose(1, consensus.One)}, sent.all())

	_, err = s.Start(context.Background(), &emptypb.Empty{})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestServer_StartWaitsForBarrier(t *testing.T) {
	barrier := readiness.NewBarrier(2)
	s, sent, _ := newTestServer(t, false, barrier)

	done := make(chan error, 1)
	go func() {
		_, err := s.Start(context.Background(), &emptypb.Empty{})
		done <- err
	}()

	barrier.MarkReady(0)
	select {
	case <-done:
		t.Fatal("start returned before every node was ready")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Empty(t, sent.all())

	barrier.MarkReady(1)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("start did not return after the barrier opened")
	}
	assert.Len(t, sent.all(), 1)
}

func TestServer_StartCancelled(t *testing.T) {
	s, sent, stopping := newTestServer(t, false, readiness.NewBarrier(2))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Start(ctx, &emptypb.Empty{})
	assert.Equal(t, codes.DeadlineExceeded, status.Code(err))

	close(stopping)
	_, err = s.Start(context.Background(), &emptypb.Empty{})
	assert.Equal(t, codes.Unavailable, status.Code(err))
	assert.Empty(t, sent.all())
}

func TestServer_FaultyStartLeavesStateUnset(t *testing.T) {
	s, sent, _ := newTestServer(t, true, openBarrier(4))

	resp, err := s.Start(context.Background(), &emptypb.Empty{})
	require.NoError(t, err)
	assert.Equal(t, StartedReply, resp.GetValue())
	assert.Empty(t, sent.all())

	st, err := s.GetState(context.Background(), &emptypb.Empty{})
	require.NoError(t, err)
	state, err := api.StateFromProto(st)
	require.NoError(t, err)
	assert.Equal(t, consensus.NodeState{}, state)
	assert.Equal(t, structpb.NullValue_NULL_VALUE, st.GetFields()["x"].GetNullValue())
}

func TestServer_StopIsIdempotent(t *testing.T) {
	s, _, _ := newTestServer(t, false, openBarrier(4))
	_, err := s.Start(context.Background(), &emptypb.Empty{})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		resp, err := s.Stop(context.Background(), &emptypb.Empty{})
		require.NoError(t, err)
		assert.Equal(t, "killed", resp.GetFields()["status"].GetStringValue())
	}

	st, err := s.GetState(context.Background(), &emptypb.Empty{})
	require.NoError(t, err)
	state, err := api.StateFromProto(st)
	require.NoError(t, err)
	assert.True(t, state.Killed)
	require.NotNil(t, state.X)
	assert.Equal(t, consensus.One, *state.X)
	assert.Equal(t, 1, *state.K)
	assert.False(t, *state.Decided)
}

func TestServer_Message(t *testing.T) {
	s, sent, _ := newTestServer(t, false, openBarrier(4))

	for i := 0; i < 3; i++ {
		resp, err := s.Message(context.Background(), api.MessageToProto(consensus.NewPropose(1, consensus.Zero)))
		require.NoError(t, err)
		assert.Equal(t, MessageReceived, resp.GetValue())
	}
	assert.Equal(t, []consensus.Message{consensus.NewVote(1, consensus.Zero)}, sent.all())
}

func TestServer_MessageInvalid(t *testing.T) {
	s, sent, _ := newTestServer(t, false, openBarrier(4))

	tests := []struct {
		name   string
		fields map[string]*structpb.Value
	}{
		{
			name: "unknown type",
			fields: map[string]*structpb.Value{
				"k": structpb.NewNumberValue(1), "x": structpb.NewNumberValue(1),
				"messageType": structpb.NewStringValue("commit"),
			},
		},
		{
			name: "round zero",
			fields: map[string]*structpb.Value{
				"k": structpb.NewNumberValue(0), "x": structpb.NewNumberValue(1),
				"messageType": structpb.NewStringValue("vote"),
			},
		},
		{
			name: "value out of domain",
			fields: map[string]*structpb.Value{
				"k": structpb.NewNumberValue(1), "x": structpb.NewNumberValue(2),
				"messageType": structpb.NewStringValue("propose"),
			},
		},
		{
			name:   "empty",
			fields: map[string]*structpb.Value{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Message(context.Background(), &structpb.Struct{Fields: tt.fields})
			assert.Equal(t, codes.InvalidArgument, status.Code(err))
		})
	}
	assert.Empty(t, sent.all())
}

func TestServer_KilledNodeDropsMessages(t *testing.T) {
	s, sent, _ := newTestServer(t, false, openBarrier(4))
	_, err := s.Stop(context.Background(), &emptypb.Empty{})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		resp, err := s.Message(context.Background(), api.MessageToProto(consensus.NewPropose(1, consensus.One)))
		require.NoError(t, err)
		assert.Equal(t, MessageReceived, resp.GetValue())
	}
	assert.Empty(t, sent.all())
}
