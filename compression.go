package bidsonym

import (
	"compress/gzip"
	"io"
	"os"
)

type DataType byte

const (
	DataTypeInvalid DataType = iota
	DataTypeNoCompression
	DataTypeGzip
	DataTypeZip
	DataTypeXZ
	DataTypeBZip2
)

var byteCodeSigs = map[DataType][]byte{
	DataTypeGzip:  {0x1f, 0x8b, 0x08},
	DataTypeZip:   {0x50, 0x4b, 0x03, 0x04},
	DataTypeXZ:    {0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00},
	DataTypeBZip2: {0x42, 0x5a, 0x68},
}

// DetectDataType attempts to detect the data type of a stream by checking
// against a set of known data types.  Byte code signatures from
// https://stackoverflow.com/a/19127748/199475
func DetectDataType(r io.Reader) (DataType, error) {
	buff := make([]byte, 6)
	n, err := io.ReadFull(r, buff)
	if err != nil && err != io.ErrUnexpectedEOF {
		return DataTypeInvalid, err
	}

	// Match known signatures
Outer:
	for dt, sig := range byteCodeSigs {
		if n < len(sig) {
			continue
		}
		for position := range sig {
			if buff[position] != sig[position] {
				continue Outer
			}
		}
		return dt, nil
	}

	return DataTypeNoCompression, nil
}

// MaybeGunzipFile opens path and transparently decompresses it if it is
// gzipped, which is how .nii.gz volumes are stored. Other archive formats are
// not valid image containers and are rejected.
func MaybeGunzipFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	dt, err := DetectDataType(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	// Reset your original reader
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}

	switch dt {
	case DataTypeGzip:
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		return &gzipFileCloser{Reader: gz, file: f}, nil
	case DataTypeNoCompression:
		return f, nil
	}

	f.Close()
	return nil, ValidationError.New("%s is compressed with an unsupported format", path)
}

// gzipFileCloser closes both the decompressor and the underlying file.
type gzipFileCloser struct {
	*gzip.Reader
	file *os.File
}

func (c *gzipFileCloser) Close() error {
	gzErr := c.Reader.Close()
	if err := c.file.Close(); err != nil {
		return err
	}
	return gzErr
}
