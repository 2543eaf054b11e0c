package storage

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 speaks just enough of the S3 REST API for the drivers: a two-page
// ListObjectsV2, single PUT, and the multipart upload calls.
type fakeS3 struct {
	mu         sync.Mutex
	pageTokens []string
	objects    map[string][]byte
	parts      map[int][]byte
	completed  []int
	aborted    bool
	failPart   int
}

func newFakeS3(t *testing.T) (*fakeS3, *httptest.Server) {
	t.Helper()
	f := &fakeS3{objects: map[string][]byte{}, parts: map[int][]byte{}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

var listPages = map[string]string{
	"": `<ListBucketResult><Name>bucket</Name><Prefix>db/</Prefix><KeyCount>2</KeyCount><MaxKeys>2</MaxKeys>
<IsTruncated>true</IsTruncated><NextContinuationToken>page-2</NextContinuationToken>
<Contents><Key>db/a.sql</Key><LastModified>2024-05-18T12:00:00.000Z</LastModified><ETag>"a"</ETag><Size>1</Size><StorageClass>STANDARD</StorageClass></Contents>
<Contents><Key>db/b.sql</Key><LastModified>2024-05-19T12:00:00.000Z</LastModified><ETag>"b"</ETag><Size>2</Size><StorageClass>STANDARD</StorageClass></Contents>
</ListBucketResult>`,
	"page-2": `<ListBucketResult><Name>bucket</Name><Prefix>db/</Prefix><KeyCount>1</KeyCount><MaxKeys>2</MaxKeys>
<IsTruncated>false</IsTruncated><ContinuationToken>page-2</ContinuationToken>
<Contents><Key>db/c.sql</Key><LastModified>2024-05-20T12:00:00.000Z</LastModified><ETag>"c"</ETag><Size>3</Size><StorageClass>STANDARD</StorageClass></Contents>
</ListBucketResult>`,
}

func (f *fakeS3) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	q := r.URL.Query()
	body, _ := io.ReadAll(r.Body)

	switch {
	case r.Method == http.MethodGet && q.Has("location"):
		writeXML(w, `<LocationConstraint>us-east-1</LocationConstraint>`)
	case r.Method == http.MethodGet && q.Get("list-type") == "2":
		token := q.Get("continuation-token")
		f.pageTokens = append(f.pageTokens, token)
		page, ok := listPages[token]
		if !ok {
			s3Error(w, http.StatusBadRequest, "InvalidArgument")
			return
		}
		writeXML(w, page)
	case r.Method == http.MethodPost && q.Has("uploads"):
		writeXML(w, fmt.Sprintf(`<InitiateMultipartUploadResult><Bucket>bucket</Bucket><Key>%s</Key><UploadId>upload-1</UploadId></InitiateMultipartUploadResult>`, key))
	case r.Method == http.MethodPut && q.Has("partNumber"):
		n, _ := strconv.Atoi(q.Get("partNumber"))
		if n == f.failPart {
			s3Error(w, http.StatusForbidden, "AccessDenied")
			return
		}
		f.parts[n] = body
		w.Header().Set("ETag", fmt.Sprintf(`"etag-%d"`, n))
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPost && q.Has("uploadId"):
		var req struct {
			Parts []struct {
				PartNumber int
				ETag       string
			} `xml:"Part"`
		}
		if err := xml.Unmarshal(body, &req); err != nil {
			s3Error(w, http.StatusBadRequest, "MalformedXML")
			return
		}
		var whole []byte
		for _, p := range req.Parts {
			f.completed = append(f.completed, p.PartNumber)
			whole = append(whole, f.parts[p.PartNumber]...)
		}
		f.objects[key] = whole
		writeXML(w, fmt.Sprintf(`<CompleteMultipartUploadResult><Bucket>bucket</Bucket><Key>%s</Key><ETag>"done"</ETag></CompleteMultipartUploadResult>`, key))
	case r.Method == http.MethodDelete && q.Has("uploadId"):
		f.aborted = true
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodPut:
		f.objects[key] = body
		w.Header().Set("ETag", `"single"`)
		w.WriteHeader(http.StatusOK)
	default:
		s3Error(w, http.StatusNotImplemented, "NotImplemented")
	}
}

func writeXML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/xml")
	_, _ = io.WriteString(w, xml.Header+body)
}

func s3Error(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `<Error><Code>%s</Code><Message>%s</Message></Error>`, code, code)
}

func testS3Options(srv *httptest.Server) S3Options {
	return S3Options{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		Region:    "us-east-1",
		Bucket:    "bucket",
		AccessKey: "access",
		SecretKey: "secret",
		PathStyle: true,
	}
}

func assertMergedPages(t *testing.T, objects []Object) {
	t.Helper()
	require.Len(t, objects, 3)
	assert.Equal(t, "db/a.sql", objects[0].Key)
	assert.Equal(t, "db/b.sql", objects[1].Key)
	assert.Equal(t, "db/c.sql", objects[2].Key)
	assert.Equal(t, int64(3), objects[2].Size)
	assert.True(t, objects[2].LastModified.Equal(time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)))
}

func TestAWSListMergesPages(t *testing.T) {
	fake, srv := newFakeS3(t)
	store := NewAWS(testS3Options(srv))

	objects, err := store.List(ctx, "db/")
	require.NoError(t, err)
	assertMergedPages(t, objects)
	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, []string{"", "page-2"}, fake.pageTokens)
}

func TestMinioListMergesPages(t *testing.T) {
	fake, srv := newFakeS3(t)
	store, err := NewS3(testS3Options(srv))
	require.NoError(t, err)

	objects, err := store.List(ctx, "db/")
	require.NoError(t, err)
	assertMergedPages(t, objects)
	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, []string{"", "page-2"}, fake.pageTokens)
}

func TestAWSPutSmallObjectIsSinglePut(t *testing.T) {
	fake, srv := newFakeS3(t)
	store := NewAWS(testS3Options(srv))

	require.NoError(t, store.Put(ctx, "db/a.sql", bytes.NewReader([]byte("dump")), 4))
	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, []byte("dump"), fake.objects["db/a.sql"])
	assert.Empty(t, fake.parts)
}

func TestAWSPutLargeObjectUsesMultipart(t *testing.T) {
	fake, srv := newFakeS3(t)
	store := NewAWS(testS3Options(srv))
	store.PartSize = 4

	data := []byte("0123456789")
	require.NoError(t, store.Put(ctx, "db/big.sql", bytes.NewReader(data), int64(len(data))))
	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, []int{1, 2, 3}, fake.completed)
	assert.Equal(t, []byte("89"), fake.parts[3])
	assert.Equal(t, data, fake.objects["db/big.sql"])
	assert.False(t, fake.aborted)
}

func TestAWSPutExactMultipleOfPartSize(t *testing.T) {
	fake, srv := newFakeS3(t)
	store := NewAWS(testS3Options(srv))
	store.PartSize = 4

	data := []byte("01234567")
	require.NoError(t, store.Put(ctx, "db/even.sql", bytes.NewReader(data), int64(len(data))))
	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, []int{1, 2}, fake.completed)
	assert.Equal(t, data, fake.objects["db/even.sql"])
}

func TestAWSPutAbortsFailedMultipart(t *testing.T) {
	fake, srv := newFakeS3(t)
	fake.failPart = 2
	store := NewAWS(testS3Options(srv))
	store.PartSize = 4

	data := []byte("0123456789")
	err := store.Put(ctx, "db/big.sql", bytes.NewReader(data), int64(len(data)))
	require.Error(t, err)
	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.True(t, fake.aborted)
	assert.NotContains(t, fake.objects, "db/big.sql")
}

func TestAWSPartSizeGrowsForHugeObjects(t *testing.T) {
	a := &AWS{PartSize: DefaultPartSize}
	assert.Equal(t, DefaultPartSize, a.partSize(DefaultPartSize*maxParts-1))

	huge := int64(5) << 40 // 5 TiB
	p := a.partSize(huge)
	assert.Greater(t, p, DefaultPartSize)
	assert.LessOrEqual(t, (huge+p-1)/p, int64(maxParts))
}
