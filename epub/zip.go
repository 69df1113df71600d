package epub

import (
	"archive/zip"
	"hash/crc32"
	"io"
	"time"

	"github.com/klauspost/compress/flate"

	"serial2epub/model"
)

const epubMimetype = "application/epub+zip"

// writeZip writes mimetype first and uncompressed, then files in order. Every entry carries
// modified so equal input gives equal bytes.
func writeZip(w io.Writer, modified time.Time, files []zipFile) error {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	if err := addMimetype(zw, modified); err != nil {
		return model.AssemblyErrorf("failed to write mimetype: %v", err)
	}
	for _, f := range files {
		if err := addToZip(zw, f.name, f.data, modified); err != nil {
			return model.AssemblyErrorf("failed to write %s: %v", f.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return model.AssemblyErrorf("failed to finish archive: %v", err)
	}
	return nil
}

// addMimetype stores the mimetype entry raw so it has neither an extra field nor a data
// descriptor.
func addMimetype(zw *zip.Writer, modified time.Time) error {
	data := []byte(epubMimetype)
	date, clock := msDosTime(modified)
	fw, err := zw.CreateRaw(&zip.FileHeader{
		Name:               "mimetype",
		Method:             zip.Store,
		CRC32:              crc32.ChecksumIEEE(data),
		CompressedSize64:   uint64(len(data)),
		UncompressedSize64: uint64(len(data)),
		ModifiedDate:       date,
		ModifiedTime:       clock,
	})
	if err != nil {
		return err
	}
	_, err = fw.Write(data)
	return err
}

func addToZip(zw *zip.Writer, name string, data []byte, modified time.Time) error {
	fw, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modified,
	})
	if err != nil {
		return err
	}
	_, err = fw.Write(data)
	return err
}

func msDosTime(t time.Time) (date, clock uint16) {
	if t.Year() < 1980 {
		t = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	date = uint16(t.Day() + int(t.Month())<<5 + (t.Year()-1980)<<9)
	clock = uint16(t.Second()/2 + t.Minute()<<5 + t.Hour()<<11)
	return date, clock
}
