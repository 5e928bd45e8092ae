package state

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/stratus-io/stratus/internal/ir"
)

// S3Store keeps one JSON object per resource under a key prefix, with
// optional run locking through a DynamoDB table. Per-record atomicity comes
// from S3's whole-object put semantics.
type S3Store struct {
	bucket        string
	prefix        string
	region        string
	dynamoDBTable string
	encrypt       bool
	profile       string

	s3Client *s3.Client
	dbClient *dynamodb.Client
	lockID   string
}

func NewS3Store(ctx context.Context, config map[string]string) (*S3Store, error) {
	bucket := config["bucket"]
	if bucket == "" {
		return nil, fmt.Errorf("s3 store requires 'bucket' configuration")
	}

	prefix := config["prefix"]
	if prefix == "" {
		prefix = "stratus/state"
	}

	region := config["region"]
	if region == "" {
		region = "us-east-1"
	}

	s := &S3Store{
		bucket:        bucket,
		prefix:        strings.TrimSuffix(prefix, "/"),
		region:        region,
		dynamoDBTable: config["dynamodb_table"],
		encrypt:       config["encrypt"] == "true",
		profile:       config["profile"],
	}

	if err := s.initClients(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize S3 store: %w", err)
	}

	return s, nil
}

func (s *S3Store) initClients(ctx context.Context) error {
	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(s.region))
	if s.profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(s.profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("unable to load AWS config: %w", err)
	}

	s.s3Client = s3.NewFromConfig(cfg)

	if s.dynamoDBTable != "" {
		s.dbClient = dynamodb.NewFromConfig(cfg)
	}

	return nil
}

func (s *S3Store) Get(ctx context.Context, addr string) (*ir.StateRecord, error) {
	key := s.recordKey(addr)
	result, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, nil
		}
		// Some S3-compatible endpoints surface missing keys as plain 404s.
		if strings.Contains(err.Error(), "NoSuchKey") || strings.Contains(err.Error(), "404") {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read state record s3://%s/%s: %w", s.bucket, key, err)
	}
	defer result.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(result.Body); err != nil {
		return nil, fmt.Errorf("failed to read S3 object body: %w", err)
	}

	data, err := DecryptRecord(buf.Bytes())
	if err != nil {
		return nil, &CorruptRecordError{Addr: addr, Path: "s3://" + s.bucket + "/" + key, Err: err}
	}
	rec, err := decodeRecord(data, "s3://"+s.bucket+"/"+key)
	if err != nil {
		var cerr *CorruptRecordError
		if errors.As(err, &cerr) && cerr.Addr == "" {
			cerr.Addr = addr
		}
		return nil, err
	}
	return rec, nil
}

func (s *S3Store) Put(ctx context.Context, rec *ir.StateRecord) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	encrypted, err := EncryptRecord(data)
	if err != nil {
		return fmt.Errorf("failed to encrypt state record: %w", err)
	}

	key := s.recordKey(rec.Addr())
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(encrypted),
	}
	if s.encrypt {
		input.ServerSideEncryption = s3types.ServerSideEncryptionAes256
	}

	if _, err := s.s3Client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to write state record s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

func (s *S3Store) Delete(ctx context.Context, addr string) error {
	key := s.recordKey(addr)
	if _, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("failed to delete state record s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

func (s *S3Store) List(ctx context.Context) ([]*ir.StateRecord, []*CorruptRecordError, error) {
	var records []*ir.StateRecord
	var corrupt []*CorruptRecordError

	paginator := s3.NewListObjectsV2Paginator(s.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix + "/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list state records under s3://%s/%s: %w", s.bucket, s.prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, ".json") {
				continue
			}
			addr := strings.TrimSuffix(strings.TrimPrefix(key, s.prefix+"/"), ".json")
			rec, err := s.Get(ctx, addr)
			if err != nil {
				var corruptErr *CorruptRecordError
				if errors.As(err, &corruptErr) {
					corrupt = append(corrupt, corruptErr)
					continue
				}
				return nil, nil, err
			}
			if rec != nil {
				records = append(records, rec)
			}
		}
	}
	return records, corrupt, nil
}

// Lock acquires a run lock through a DynamoDB conditional put. Without a
// table configured, locking is a no-op.
func (s *S3Store) Lock() error {
	if s.dynamoDBTable == "" {
		return nil
	}

	s.lockID = fmt.Sprintf("stratus-%d-%d", os.Getpid(), time.Now().UnixNano())

	_, err := s.dbClient.PutItem(context.Background(), &dynamodb.PutItemInput{
		TableName: aws.String(s.dynamoDBTable),
		Item: map[string]dbtypes.AttributeValue{
			"LockID":  &dbtypes.AttributeValueMemberS{Value: s.prefix},
			"Info":    &dbtypes.AttributeValueMemberS{Value: s.lockID},
			"Created": &dbtypes.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		},
		ConditionExpression: aws.String("attribute_not_exists(LockID)"),
	})
	if err != nil {
		if strings.Contains(err.Error(), "ConditionalCheckFailedException") {
			return fmt.Errorf("state is locked by another process. If this is an error, "+
				"manually delete the lock item with LockID=%q from DynamoDB table %q", s.prefix, s.dynamoDBTable)
		}
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	return nil
}

func (s *S3Store) Unlock() error {
	if s.dynamoDBTable == "" {
		return nil
	}

	_, err := s.dbClient.DeleteItem(context.Background(), &dynamodb.DeleteItemInput{
		TableName: aws.String(s.dynamoDBTable),
		Key: map[string]dbtypes.AttributeValue{
			"LockID": &dbtypes.AttributeValueMemberS{Value: s.prefix},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	return nil
}

func (s *S3Store) recordKey(addr string) string {
	return s.prefix + "/" + addr + ".json"
}
