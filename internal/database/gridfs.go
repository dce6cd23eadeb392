package repository

import (
	"bytes"
	"fmt"
	"io"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"OmniHub/entity"
	"OmniHub/internal/lib/sl"
)

// SaveFile stores an attachment binary in GridFS and returns the hex
// file id the signed download URLs refer to.
func (m *MongoDB) SaveFile(filename string, data []byte, meta entity.FileMetadata) (string, error) {
	connection, err := m.connect()
	if err != nil {
		return "", err
	}
	defer m.disconnect(connection)

	bucket, err := gridfs.NewBucket(connection.Database(m.database))
	if err != nil {
		return "", fmt.Errorf("gridfs bucket: %w", err)
	}

	uploadOpts := options.GridFSUpload().SetMetadata(meta)
	fileID, err := bucket.UploadFromStream(filename, bytes.NewReader(data), uploadOpts)
	if err != nil {
		return "", fmt.Errorf("gridfs upload: %w", err)
	}
	return fileID.Hex(), nil
}

// fileReadCloser wraps a GridFS download stream and disconnects the
// MongoDB client when closed.
type fileReadCloser struct {
	stream     *gridfs.DownloadStream
	disconnect func()
}

func (r *fileReadCloser) Read(p []byte) (int, error) {
	return r.stream.Read(p)
}

func (r *fileReadCloser) Close() error {
	err := r.stream.Close()
	r.disconnect()
	return err
}

// OpenFile retrieves a stored attachment by its hex id. The caller must
// close the returned ReadCloser to release the MongoDB connection.
func (m *MongoDB) OpenFile(fileID string) (string, string, io.ReadCloser, error) {
	oid, err := primitive.ObjectIDFromHex(fileID)
	if err != nil {
		return "", "", nil, fmt.Errorf("invalid file id %q: %w", fileID, err)
	}

	connection, err := m.connect()
	if err != nil {
		return "", "", nil, err
	}

	bucket, err := gridfs.NewBucket(connection.Database(m.database))
	if err != nil {
		m.disconnect(connection)
		return "", "", nil, fmt.Errorf("gridfs bucket: %w", err)
	}

	stream, err := bucket.OpenDownloadStream(oid)
	if err != nil {
		m.disconnect(connection)
		return "", "", nil, fmt.Errorf("gridfs open download: %w", err)
	}

	file := stream.GetFile()

	var meta entity.FileMetadata
	if len(file.Metadata) > 0 {
		if err := bson.Unmarshal(file.Metadata, &meta); err != nil {
			m.log.Error("decode gridfs metadata", sl.Err(err))
		}
	}

	reader := &fileReadCloser{
		stream:     stream,
		disconnect: func() { m.disconnect(connection) },
	}

	return file.Name, meta.MimeType, reader, nil
}
