package blob

import (
	"context"
	"fmt"
	"os"
)

// Open selects a blob store backend from environment variables.
//
//	METSI_BLOB_DRIVER:  fs|s3|memory (default fs)
//	METSI_BLOB_FS_ROOT: root directory when driver=fs (default ./blobdata)
//	METSI_BLOB_S3_*:    see OpenS3FromEnv
func Open(ctx context.Context) (Store, error) {
	driver := Driver(os.Getenv("METSI_BLOB_DRIVER"))
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(os.Getenv("METSI_BLOB_FS_ROOT"))
	case DriverS3:
		return OpenS3FromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
