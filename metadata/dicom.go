package metadata

import (
	"github.com/carbocation/pfx"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// ReadDICOMHeader returns the data elements of a DICOM file, named by their
// dictionary keyword where known. Pixel data is not read.
func ReadDICOMHeader(path string) ([]Field, error) {
	dataset, err := dicom.ParseFile(path, nil, dicom.SkipPixelData())
	if err != nil {
		return nil, pfx.Err(err)
	}

	out := make([]Field, 0, len(dataset.Elements))
	for _, elem := range dataset.Elements {
		if elem == nil {
			continue
		}

		name := elem.Tag.String()
		if info, err := tag.Find(elem.Tag); err == nil && info.Name != "" {
			name = info.Name
		}

		value := ""
		if elem.Value != nil {
			value = elem.Value.String()
		}

		out = append(out, Field{Name: name, Value: value})
	}

	return out, nil
}
