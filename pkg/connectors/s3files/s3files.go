// Package s3files exposes a bucket prefix as a small file store the assistant
// can list, read and write.
package s3files

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ryan12324/openassistant/pkg/connectorx"
)

const (
	ID = "s3files"

	defaultMaxKeys   = 100
	maxReadBytes     = 256 << 10
	defaultMediaType = "text/plain; charset=utf-8"
)

// API is the subset of the S3 client the connector uses.
type API interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ClientFunc builds an API client from an instance config.
type ClientFunc func(ctx context.Context, cfg connectorx.Config) (API, error)

func Definition() connectorx.Definition {
	pathParam := map[string]any{"type": "string", "description": "Path relative to the configured prefix"}
	return connectorx.Definition{
		ID:       ID,
		Name:     "S3 Files",
		Category: "storage",
		ConfigFields: []connectorx.ConfigField{
			{Key: "bucket", Label: "Bucket", Type: connectorx.FieldString, Required: true},
			{Key: "prefix", Label: "Key prefix", Type: connectorx.FieldString},
			{Key: "region", Label: "Region", Type: connectorx.FieldString, Default: "us-east-1"},
			{Key: "access_key_id", Label: "Access key id", Type: connectorx.FieldString},
			{Key: "secret_access_key", Label: "Secret access key", Type: connectorx.FieldSecret},
			{Key: "endpoint", Label: "Custom endpoint", Type: connectorx.FieldURL},
		},
		Capabilities: []connectorx.Capability{
			{
				ID:          "list_files",
				Name:        "List files",
				Description: "List files stored under a directory.",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{"path": pathParam},
				},
			},
			{
				ID:          "read_file",
				Name:        "Read file",
				Description: "Read the text content of a file.",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{"path": pathParam},
					"required":   []string{"path"},
				},
			},
			{
				ID:          "write_file",
				Name:        "Write file",
				Description: "Create or overwrite a text file.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"path":    pathParam,
						"content": map[string]any{"type": "string"},
					},
					"required": []string{"path", "content"},
				},
			},
		},
		SupportsOutbound: true,
	}
}

// NewClient builds a real S3 client. Static credentials are used when the
// config carries them, otherwise the default AWS credential chain applies.
func NewClient(ctx context.Context, cfg connectorx.Config) (API, error) {
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.String("region")),
	}
	if ak := cfg.String("access_key_id"); ak != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(ak, cfg.String("secret_access_key"), ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if endpoint := cfg.String("endpoint"); endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(awsCfg, s3Opts...), nil
}

type Connector struct {
	*connectorx.Base
	newClient ClientFunc
	client    API
}

// Factory builds s3files instances. A nil newClient uses NewClient.
func Factory(newClient ClientFunc) connectorx.Factory {
	if newClient == nil {
		newClient = NewClient
	}
	return func(spec connectorx.InstanceSpec) (connectorx.Instance, error) {
		return &Connector{Base: connectorx.NewBase(spec), newClient: newClient}, nil
	}
}

func (c *Connector) Connect(ctx context.Context) error {
	return c.Open(ctx, func(ctx context.Context) error {
		client, err := c.newClient(ctx, c.Config())
		if err != nil {
			return err
		}
		if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket())}); err != nil {
			return fmt.Errorf("bucket %s not reachable: %w", c.bucket(), err)
		}
		c.client = client
		return nil
	})
}

func (c *Connector) Disconnect(ctx context.Context) error {
	return c.Close(ctx, func(context.Context) error {
		c.client = nil
		return nil
	})
}

func (c *Connector) ExecuteCapability(ctx context.Context, capabilityID string, args map[string]any) (*connectorx.CapabilityResult, error) {
	if res := c.Guard(capabilityID); res != nil {
		return res, nil
	}

	a := connectorx.Config(args)
	switch capabilityID {
	case "list_files":
		return c.list(ctx, a.String("path"))
	case "read_file":
		return c.read(ctx, a.String("path"))
	case "write_file":
		return c.write(ctx, a.String("path"), a.String("content"))
	}
	return connectorx.UnknownCapability(), nil
}

func (c *Connector) bucket() string { return c.Config().String("bucket") }

// key joins the configured prefix and a relative path, refusing to climb out of the prefix.
func (c *Connector) key(rel string) (string, error) {
	if strings.Contains(rel, "..") {
		return "", fmt.Errorf("path %q escapes the configured prefix", rel)
	}
	clean := path.Clean("/" + strings.TrimSpace(rel))
	prefix := strings.Trim(c.Config().String("prefix"), "/")
	key := strings.TrimPrefix(clean, "/")
	if prefix != "" {
		key = prefix + "/" + key
	}
	return strings.TrimSuffix(key, "/"), nil
}

func (c *Connector) list(ctx context.Context, dir string) (*connectorx.CapabilityResult, error) {
	prefix, err := c.key(dir)
	if err != nil {
		return connectorx.Failure(err), nil
	}
	if prefix != "" {
		prefix += "/"
	}

	out, err := c.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(c.bucket()),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(defaultMaxKeys),
	})
	if err != nil {
		return connectorx.Failure(err), nil
	}

	files := make([]map[string]any, 0, len(out.Contents))
	names := make([]string, 0, len(out.Contents))
	for _, obj := range out.Contents {
		name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
		names = append(names, name)
		files = append(files, map[string]any{
			"path": name,
			"size": aws.ToInt64(obj.Size),
		})
	}

	output := "No files found"
	if len(names) > 0 {
		output = strings.Join(names, "\n")
	}
	return &connectorx.CapabilityResult{Success: true, Output: output, Data: files}, nil
}

func (c *Connector) read(ctx context.Context, rel string) (*connectorx.CapabilityResult, error) {
	if strings.TrimSpace(rel) == "" {
		return &connectorx.CapabilityResult{Success: false, Output: "path is required"}, nil
	}
	key, err := c.key(rel)
	if err != nil {
		return connectorx.Failure(err), nil
	}

	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket()),
		Key:    aws.String(key),
	})
	if err != nil {
		return connectorx.Failure(err), nil
	}
	defer out.Body.Close()

	body, err := io.ReadAll(io.LimitReader(out.Body, maxReadBytes))
	if err != nil {
		return connectorx.Failure(err), nil
	}
	return &connectorx.CapabilityResult{Success: true, Output: string(body)}, nil
}

func (c *Connector) write(ctx context.Context, rel, content string) (*connectorx.CapabilityResult, error) {
	if strings.TrimSpace(rel) == "" {
		return &connectorx.CapabilityResult{Success: false, Output: "path is required"}, nil
	}
	key, err := c.key(rel)
	if err != nil {
		return connectorx.Failure(err), nil
	}

	_, err = c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket()),
		Key:         aws.String(key),
		Body:        bytes.NewReader([]byte(content)),
		ContentType: aws.String(defaultMediaType),
	})
	if err != nil {
		return connectorx.Failure(err), nil
	}
	return &connectorx.CapabilityResult{
		Success: true,
		Output:  fmt.Sprintf("Wrote %d bytes to %s", len(content), rel),
		Data:    map[string]any{"key": key},
	}, nil
}
