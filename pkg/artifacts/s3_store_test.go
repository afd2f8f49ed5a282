package artifacts

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// fakeS3 is an in-memory bucket.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
	headErr error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}}
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.headErr != nil {
		return nil, f.headErr
	}
	if _, ok := f.objects[*in.Key]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Key] = data
	f.puts++
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store_RoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	s := newS3Store(fake, "reports", "trustengine/")

	hash, err := s.Put(ctx, []byte("report"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := s.Put(ctx, []byte("report")); err != nil {
		t.Fatalf("second Put failed: %v", err)
	}
	if fake.puts != 1 {
		t.Errorf("puts = %d, want 1", fake.puts)
	}
	for key := range fake.objects {
		if key[:len("trustengine/")] != "trustengine/" {
			t.Errorf("key %q lacks prefix", key)
		}
	}

	got, err := s.Get(ctx, hash)
	if err != nil || string(got) != "report" {
		t.Fatalf("Get = %q, %v", got, err)
	}
	ok, err := s.Exists(ctx, hash)
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}
	if err := s.Delete(ctx, hash); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, hash); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
}

func TestS3Store_HeadFailureIsNotAbsence(t *testing.T) {
	fake := newFakeS3()
	fake.headErr = errors.New("access denied")
	s := newS3Store(fake, "reports", "")

	if _, err := s.Put(context.Background(), []byte("x")); err == nil {
		t.Fatal("expected head failure to abort Put")
	}
	if fake.puts != 0 {
		t.Errorf("puts = %d, want 0", fake.puts)
	}
}
