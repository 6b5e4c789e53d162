package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/FridgeSeal/swarm/internal/article"
	"github.com/FridgeSeal/swarm/internal/kv"
	"github.com/FridgeSeal/swarm/internal/store"
	"github.com/FridgeSeal/swarm/internal/store/memory"
)

// rawCodec passes pre-encoded payloads through untouched, like a client built from another
// language's generated stubs.
type rawCodec struct{}

func (rawCodec) Marshal(v any) ([]byte, error) { return *v.(*[]byte), nil }

func (rawCodec) Unmarshal(data []byte, v any) error {
	*v.(*[]byte) = append([]byte(nil), data...)
	return nil
}

func (rawCodec) Name() string { return "proto" }

func startServer(t *testing.T, st store.Store) *Client {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer(kv.NewService(st, zap.NewNop()), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ServeListener(ctx, srv, lis, zap.NewNop()) }()

	client, err := Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return client
}

func TestHealthcheck(t *testing.T) {
	t.Parallel()

	client := startServer(t, memory.New())
	resp, err := client.Healthcheck(context.Background())
	require.NoError(t, err)
	require.True(t, resp.IsHealthy)
	require.Equal(t, kv.HealthyMessage, resp.Message)
}

func TestWriteAndReadData(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := startServer(t, memory.New())

	resp, err := client.WriteData(ctx, []byte("42"), "hello")
	require.NoError(t, err)
	require.Equal(t, &WriteDataResponse{WasSuccessful: true, Reply: "hello"}, resp)

	resp, err = client.WriteData(ctx, []byte("42"), "world")
	require.NoError(t, err)
	require.Equal(t, &WriteDataResponse{WasSuccessful: true, Reply: "hello"}, resp)

	data, err := client.ReadData(ctx, []byte("42"))
	require.NoError(t, err)
	require.Equal(t, "world", data)
}

func TestReadDataErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := memory.New()
	_, _, err := st.Insert(ctx, []byte("bin"), []byte{0xff})
	require.NoError(t, err)
	client := startServer(t, st)

	_, err = client.ReadData(ctx, []byte("absent"))
	require.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.ReadData(ctx, []byte("bin"))
	require.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestReadArticle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := memory.New()
	rec := article.New()
	rec.Title = "Storm heads north"
	published := time.Date(2023, 5, 1, 10, 0, 0, 0, time.FixedZone("", 36000))
	rec.TimestampPublished = &published
	encoded, err := article.Encode(rec)
	require.NoError(t, err)
	_, _, err = st.Insert(ctx, []byte("12345678"), encoded)
	require.NoError(t, err)
	_, _, err = st.Insert(ctx, []byte("note"), []byte("not a record"))
	require.NoError(t, err)

	client := startServer(t, st)
	resp, err := client.ReadArticle(ctx, "12345678")
	require.NoError(t, err)
	require.Equal(t, "Storm heads north", resp.Article.Title)
	require.True(t, resp.Article.TimestampPublished.Equal(published))
	require.EqualValues(t, article.SchemaVersion, resp.Article.SchemaVersion)

	_, err = client.ReadArticle(ctx, "missing")
	require.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.ReadArticle(ctx, "note")
	require.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestWriteDataAcceptsProtobufWireFormat(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := memory.New()
	client := startServer(t, st)

	var req []byte
	req = protowire.AppendTag(req, 1, protowire.BytesType)
	req = protowire.AppendBytes(req, []byte("42"))
	req = protowire.AppendTag(req, 2, protowire.BytesType)
	req = protowire.AppendString(req, "hello")

	var resp []byte
	err := client.conn.Invoke(ctx, "/swarm.SwarmDataService/WriteData", &req, &resp, grpc.ForceCodec(rawCodec{}))
	require.NoError(t, err)

	var want []byte
	want = protowire.AppendTag(want, 1, protowire.VarintType)
	want = protowire.AppendVarint(want, 1)
	want = protowire.AppendTag(want, 2, protowire.BytesType)
	want = protowire.AppendString(want, "hello")
	require.Equal(t, want, resp)

	stored, err := st.Get(ctx, []byte("42"))
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), stored)

	req = protowire.AppendTag(nil, 1, protowire.BytesType)
	req = protowire.AppendBytes(req, []byte("42"))
	err = client.conn.Invoke(ctx, "/swarm.SwarmDataService/ReadData", &req, &resp, grpc.ForceCodec(rawCodec{}))
	require.NoError(t, err)
	want = protowire.AppendTag(nil, 1, protowire.BytesType)
	want = protowire.AppendString(want, "hello")
	require.Equal(t, want, resp)
}

func TestMessagesSkipUnknownFields(t *testing.T) {
	t.Parallel()

	var b []byte
	b = protowire.AppendTag(b, 9, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, 7)
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte("k"))

	var req WriteDataRequest
	require.NoError(t, req.unmarshal(b))
	require.Equal(t, []byte("k"), req.Key)
	require.Empty(t, req.Data)
}

func TestCodecRejectsInvalidUTF8String(t *testing.T) {
	t.Parallel()

	b := protowire.AppendTag(nil, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte{0xff, 0xfe})
	require.Error(t, Codec{}.Unmarshal(b, &WriteDataRequest{}))
}

func TestRecoveryInterceptor(t *testing.T) {
	t.Parallel()

	intercept := recoveryInterceptor(zap.NewNop())
	info := &grpc.UnaryServerInfo{FullMethod: MethodReadData}
	_, err := intercept(context.Background(), nil, info, func(context.Context, any) (any, error) {
		panic("boom")
	})
	require.Equal(t, codes.Internal, status.Code(err))
}

func TestToStatus(t *testing.T) {
	t.Parallel()

	require.Equal(t, codes.NotFound, status.Code(toStatus(kv.ErrNotFound)))
	require.Equal(t, codes.FailedPrecondition, status.Code(toStatus(article.ErrUnsupportedVersion)))
	require.Equal(t, codes.Internal, status.Code(toStatus(context.DeadlineExceeded)))
}
