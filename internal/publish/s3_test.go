package publish

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/tarim/internal/output"
)

type putCall struct {
	bucket, key, contentType string
	body                     string
	meta                     map[string]string
}

type fakeS3 struct {
	calls []putCall
	fail  string
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	key := aws.ToString(in.Key)
	if key == f.fail {
		return nil, errors.New("access denied")
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.calls = append(f.calls, putCall{
		bucket:      aws.ToString(in.Bucket),
		key:         key,
		contentType: aws.ToString(in.ContentType),
		body:        string(body),
		meta:        in.Metadata,
	})
	return &s3.PutObjectOutput{}, nil
}

func dataDir(t *testing.T) *output.Dir {
	t.Helper()
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "data/"+output.FlatFile, []byte(`[]`), 0o644))
	require.NoError(t, util.WriteFile(fs, "data/"+output.TreeFile, []byte(`[{}]`), 0o644))
	require.NoError(t, util.WriteFile(fs, "data/"+output.FlatWithTaxFile, []byte(`stale`), 0o644))
	require.NoError(t, util.WriteFile(fs, "data/"+output.ReportFile, []byte(`{
  "run_id": "r-1",
  "command": "build",
  "files": ["nomenclature_flat.json", "nomenclature_tree.json", "run_report.json"]
}`), 0o644))
	return output.NewDir(fs, "data")
}

func TestPublish(t *testing.T) {
	fake := &fakeS3{}
	p := &Publisher{Client: fake, Bucket: "tariffs", Prefix: "nomenclature/"}

	res, err := p.Publish(context.Background(), dataDir(t))
	require.NoError(t, err)
	assert.Equal(t, "r-1", res.RunID)
	assert.Equal(t, []string{
		"nomenclature/nomenclature_flat.json",
		"nomenclature/nomenclature_tree.json",
		"nomenclature/run_report.json",
	}, res.Keys, "report goes last; files outside the run are skipped")

	require.Len(t, fake.calls, 3)
	assert.Equal(t, "tariffs", fake.calls[0].bucket)
	assert.Equal(t, "[]", fake.calls[0].body)
	assert.Equal(t, "application/json", fake.calls[1].contentType)
	assert.Equal(t, map[string]string{"run-id": "r-1", "command": "build"}, fake.calls[2].meta)
}

func TestPublish_NoReport(t *testing.T) {
	p := &Publisher{Client: &fakeS3{}, Bucket: "b"}
	_, err := p.Publish(context.Background(), output.NewDir(memfs.New(), "data"))
	assert.ErrorIs(t, err, ErrNoRun)
}

func TestPublish_PutFails(t *testing.T) {
	fake := &fakeS3{fail: output.TreeFile}
	p := &Publisher{Client: fake, Bucket: "b"}

	res, err := p.Publish(context.Background(), dataDir(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
	assert.Equal(t, []string{output.FlatFile}, res.Keys)
}

func TestPublish_MissingListedFile(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "data/"+output.ReportFile,
		[]byte(`{"run_id":"x","files":["nomenclature_flat.json"]}`), 0o644))

	p := &Publisher{Client: &fakeS3{}, Bucket: "b"}
	_, err := p.Publish(context.Background(), output.NewDir(fs, "data"))
	assert.Error(t, err)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "a.json", (&Publisher{}).Key("a.json"))
	assert.Equal(t, "exports/a.json", (&Publisher{Prefix: "exports"}).Key("a.json"))
}
