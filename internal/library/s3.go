package library

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"cx-go/internal/cx"
)

// S3Client is the subset of the S3 API the library needs.
type S3Client interface {
	s3.ListObjectsV2APIClient
	manager.DownloadAPIClient
}

// S3Library exposes a bucket prefix as a project library, laid out like
// FileSystemLibrary:
//
//	s3://<bucket>/<prefix>/<project>/<folder>/.../Bracket v3.f3d
//
// Opening a document downloads the object to a temp file; closing deletes
// the temp file. Nothing is ever uploaded.
type S3Library struct {
	client     S3Client
	downloader *manager.Downloader
	bucket     string
	prefix     string // "" or ends with "/"
	ignore     *IgnoreMatcher

	mu     sync.Mutex
	active string
}

// NewS3Library creates a library over bucket/prefix.
func NewS3Library(client S3Client, bucket, prefix string, patterns []string) *S3Library {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &S3Library{
		client:     client,
		downloader: manager.NewDownloader(client),
		bucket:     bucket,
		prefix:     prefix,
		ignore:     NewIgnoreMatcher(patterns),
	}
}

// Projects lists the first-level common prefixes.
func (l *S3Library) Projects(ctx context.Context) ([]cx.Project, error) {
	dirs, _, err := l.list(ctx, l.prefix)
	if err != nil {
		return nil, err
	}
	projects := make([]cx.Project, len(dirs))
	for i, d := range dirs {
		projects[i] = &s3Folder{lib: l, prefix: d}
	}
	return projects, nil
}

// s3Folder serves as both project and folder.
type s3Folder struct {
	lib    *S3Library
	prefix string // ends with "/"
}

func (f *s3Folder) Name() string {
	return path.Base(strings.TrimSuffix(f.prefix, "/"))
}

func (f *s3Folder) Folders(ctx context.Context) ([]cx.Folder, error) {
	dirs, _, err := f.lib.list(ctx, f.prefix)
	if err != nil {
		return nil, err
	}
	folders := make([]cx.Folder, len(dirs))
	for i, d := range dirs {
		folders[i] = &s3Folder{lib: f.lib, prefix: d}
	}
	return folders, nil
}

func (f *s3Folder) Files(ctx context.Context) ([]cx.File, error) {
	_, keys, err := f.lib.list(ctx, f.prefix)
	if err != nil {
		return nil, err
	}
	keys = latestVersions(keys, path.Base)
	files := make([]cx.File, len(keys))
	for i, k := range keys {
		name, ext, version := parseFileName(path.Base(k))
		files[i] = &s3File{
			key:       k,
			id:        strings.TrimPrefix(k, f.lib.prefix),
			name:      name,
			extension: ext,
			version:   version,
		}
	}
	return files, nil
}

// list returns the child prefixes and object keys directly below prefix.
func (l *S3Library) list(ctx context.Context, prefix string) (dirs, keys []string, err error) {
	p := s3.NewListObjectsV2Paginator(l.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(l.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("listing s3://%s/%s: %w", l.bucket, prefix, err)
		}
		for _, cp := range page.CommonPrefixes {
			d := aws.ToString(cp.Prefix)
			if l.hidden(d) || l.ignore.MatchDir(strings.TrimSuffix(strings.TrimPrefix(d, l.prefix), "/")) {
				continue
			}
			dirs = append(dirs, d)
		}
		for _, obj := range page.Contents {
			k := aws.ToString(obj.Key)
			if k == prefix || strings.HasSuffix(k, "/") || l.hidden(k) {
				continue
			}
			if l.ignore.Match(strings.TrimPrefix(k, l.prefix)) {
				continue
			}
			keys = append(keys, k)
		}
	}
	return dirs, keys, nil
}

func (l *S3Library) hidden(key string) bool {
	return strings.HasPrefix(path.Base(strings.TrimSuffix(key, "/")), ".")
}

// s3File is an object in the bucket.
type s3File struct {
	key       string
	id        string
	name      string
	extension string
	version   int
}

func (f *s3File) Name() string      { return f.name }
func (f *s3File) Version() int      { return f.version }
func (f *s3File) Extension() string { return f.extension }
func (f *s3File) ID() string        { return f.id }

// S3Document is a downloaded object.
type S3Document struct {
	file      *s3File
	localPath string
}

func (d *S3Document) Name() string      { return d.file.name }
func (d *S3Document) LocalPath() string { return d.localPath }

// Open downloads the object to a temp file.
func (l *S3Library) Open(ctx context.Context, file cx.File) (cx.Document, error) {
	f, ok := file.(*s3File)
	if !ok {
		name, ext, version := parseFileName(path.Base(file.ID()))
		f = &s3File{key: l.prefix + file.ID(), id: file.ID(), name: name, extension: ext, version: version}
	}

	tmp, err := os.CreateTemp("", "cx-"+tempSafe(f.name)+"-*."+f.extension)
	if err != nil {
		return nil, fmt.Errorf("creating download file: %w", err)
	}

	_, err = l.downloader.Download(ctx, tmp, &s3.GetObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(f.key),
	})
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("downloading s3://%s/%s: %w", l.bucket, f.key, err)
	}

	return &S3Document{file: f, localPath: tmp.Name()}, nil
}

// Activate records doc as the active document.
func (l *S3Library) Activate(_ context.Context, doc cx.Document) error {
	d, ok := doc.(*S3Document)
	if !ok {
		return fmt.Errorf("not an s3 document: %T", doc)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.active = d.file.id
	return nil
}

// Close deletes the downloaded copy. Saving back is not supported.
func (l *S3Library) Close(doc cx.Document, save bool) error {
	d, ok := doc.(*S3Document)
	if !ok {
		return fmt.Errorf("not an s3 document: %T", doc)
	}
	l.mu.Lock()
	if l.active == d.file.id {
		l.active = ""
	}
	l.mu.Unlock()

	if err := os.Remove(d.localPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing download: %w", err)
	}
	if save {
		return fmt.Errorf("s3 library is read-only: cannot save %s", d.file.id)
	}
	return nil
}

// Compile-time checks that S3Library implements the host interfaces
var (
	_ cx.Hierarchy       = (*S3Library)(nil)
	_ cx.DocumentService = (*S3Library)(nil)
)
