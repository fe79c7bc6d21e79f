package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/stake-plus/escrow-market/src/api/config"
)

// GridFSStore keeps blobs in a MongoDB GridFS bucket with the CID as file id.
type GridFSStore struct {
	client  *mongo.Client
	bucket  *gridfs.Bucket
	maxSize int64
}

type gridMeta struct {
	ContentType string `bson:"contentType"`
}

type gridFile struct {
	ID         string    `bson:"_id"`
	Length     int64     `bson:"length"`
	Name       string    `bson:"filename"`
	UploadDate time.Time `bson:"uploadDate"`
	Metadata   gridMeta  `bson:"metadata"`
}

func NewGridFSStore(ctx context.Context, cfg config.StorageConfig) (*GridFSStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	bucket, err := gridfs.NewBucket(client.Database(cfg.MongoDB), options.GridFSBucket().SetName(cfg.MongoBucket))
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("gridfs bucket: %w", err)
	}
	return &GridFSStore{client: client, bucket: bucket, maxSize: cfg.MaxUpload}, nil
}

func (g *GridFSStore) Backend() string { return "gridfs" }

func (g *GridFSStore) Close(ctx context.Context) error {
	return g.client.Disconnect(ctx)
}

func (g *GridFSStore) Put(ctx context.Context, name, contentType string, r io.Reader) (Object, error) {
	sp, err := spool(r, "", g.maxSize)
	if err != nil {
		return Object{}, err
	}
	defer sp.Close()

	if obj, err := g.Stat(ctx, sp.cid); err == nil {
		return obj, nil
	}

	obj := newObject(sp.cid, name, contentType, sp.size)
	if dl, ok := ctx.Deadline(); ok {
		if err := g.bucket.SetWriteDeadline(dl); err != nil {
			return Object{}, err
		}
	}
	up := options.GridFSUpload().SetMetadata(gridMeta{ContentType: obj.ContentType})
	if err := g.bucket.UploadFromStreamWithID(obj.CID, obj.Name, sp.f, up); err != nil {
		return Object{}, fmt.Errorf("gridfs upload: %w", err)
	}
	return obj, nil
}

func (g *GridFSStore) Open(ctx context.Context, cid string) (io.ReadCloser, Object, error) {
	obj, err := g.Stat(ctx, cid)
	if err != nil {
		return nil, Object{}, err
	}
	ds, err := g.bucket.OpenDownloadStream(cid)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, Object{}, ErrNotFound
		}
		return nil, Object{}, err
	}
	return ds, obj, nil
}

func (g *GridFSStore) Stat(ctx context.Context, cid string) (Object, error) {
	if !ValidCID(cid) {
		return Object{}, ErrInvalidCID
	}
	cur, err := g.bucket.FindContext(ctx, bson.D{{Key: "_id", Value: cid}})
	if err != nil {
		return Object{}, err
	}
	var files []gridFile
	if err := cur.All(ctx, &files); err != nil {
		return Object{}, err
	}
	if len(files) == 0 {
		return Object{}, ErrNotFound
	}
	f := files[0]
	return Object{
		CID:         cid,
		Name:        f.Name,
		ContentType: f.Metadata.ContentType,
		Size:        f.Length,
		CreatedAt:   f.UploadDate,
	}, nil
}
