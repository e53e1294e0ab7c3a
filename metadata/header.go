package metadata

import (
	"encoding/binary"
	"fmt"
	"io"
	"reflect"
	"strings"
	"unicode"

	"github.com/carbocation/pfx"
	"github.com/henghuang/nifti"

	bidsonym "github.com/PeerHerholz/BIDSonym"
)

const (
	nifti1HeaderSize = 348
	nifti2HeaderSize = 540
)

// ReadNIfTIHeader returns the fields of a NIfTI-1 header in declaration order,
// named in snake_case ("sizeof_hdr", "descrip", "aux_file").
func ReadNIfTIHeader(path string) ([]Field, error) {
	if err := checkNIfTI1(path); err != nil {
		return nil, err
	}

	hdr, err := safelyNiftiHeaderParse(path)
	if err != nil {
		return nil, pfx.Err(fmt.Errorf("%s: %w", path, err))
	}

	return structFields(hdr), nil
}

// checkNIfTI1 reads sizeof_hdr so that non-NIfTI-1 files are rejected with an
// error instead of a library panic.
func checkNIfTI1(path string) error {
	rc, err := bidsonym.MaybeGunzipFile(path)
	if err != nil {
		return err
	}
	defer rc.Close()

	buf := make([]byte, 4)
	if _, err := io.ReadFull(rc, buf); err != nil {
		return bidsonym.ValidationError.New("%s: truncated header", path)
	}

	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		switch int32(order.Uint32(buf)) {
		case nifti1HeaderSize:
			return nil
		case nifti2HeaderSize:
			return bidsonym.ValidationError.New("%s: NIfTI-2 headers are not supported", path)
		}
	}

	return bidsonym.ValidationError.New("%s is not a NIfTI-1 image", path)
}

// safelyNiftiHeaderParse consumes panics emitted by the nifti library, which are
// inappropriate and must be captured in order to turn them into recoverable
// errors.
func safelyNiftiHeaderParse(filename string) (parsedData nifti.Nifti1Header, err error) {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			err = fmt.Errorf("%v", panicErr)
		}
	}()

	parsedData.LoadHeader(filename)

	return
}

// structFields flattens the exported fields of a header struct.
func structFields(v interface{}) []Field {
	rv := reflect.Indirect(reflect.ValueOf(v))
	if rv.Kind() != reflect.Struct {
		return nil
	}

	rt := rv.Type()
	out := make([]Field, 0, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		f := rv.Field(i)
		if !f.CanInterface() {
			continue
		}
		out = append(out, Field{
			Name:  snakeCase(rt.Field(i).Name),
			Value: renderValue(f),
		})
	}
	return out
}

// renderValue prints byte arrays (descrip, aux_file, intent_name, magic) as
// NUL-terminated text and everything else with fmt.
func renderValue(v reflect.Value) string {
	if v.Kind() == reflect.Array || v.Kind() == reflect.Slice {
		switch v.Type().Elem().Kind() {
		case reflect.Uint8, reflect.Int8:
			b := make([]byte, 0, v.Len())
			for i := 0; i < v.Len(); i++ {
				var c byte
				if v.Index(i).Kind() == reflect.Int8 {
					c = byte(v.Index(i).Int())
				} else {
					c = byte(v.Index(i).Uint())
				}
				if c == 0 {
					break
				}
				b = append(b, c)
			}
			return strings.TrimSpace(string(b))
		}
	}

	return fmt.Sprint(v.Interface())
}

func snakeCase(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteRune('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
