// Package mjpeg writes multipart/x-mixed-replace image streams.
package mjpeg

import (
	"io"
	"strconv"
)

const (
	Boundary    = "frame"
	ContentType = "multipart/x-mixed-replace; boundary=" + Boundary
	PartType    = "image/jpeg"
)

// WritePart writes one self describing part:
//
//	--frame\r\nContent-Type: image/jpeg\r\nContent-Length: <n>\r\n\r\n<frame>\r\n
func WritePart(w io.Writer, frame []byte) error {
	header := make([]byte, 0, 80)
	header = append(header, "--"+Boundary+"\r\n"...)
	header = append(header, "Content-Type: "+PartType+"\r\n"...)
	header = append(header, "Content-Length: "...)
	header = strconv.AppendInt(header, int64(len(frame)), 10)
	header = append(header, "\r\n\r\n"...)

	if _, err := w.Write(header); err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	_, err := w.Write([]byte("\r\n"))
	return err
}
