// Package jsp (JSON persistence) saves and loads arbitrary JSON-encodable
// structures to disk atomically (temp file + fsync + rename), optionally
// appending a SHA-256 checksum of the encoded bytes that Load verifies.
//
// fragstore uses jsp for exactly one thing: Config.Save/Load (ambient).
/*
 * Copyright (c) 2024, fragstore authors. All rights reserved.
 */
package jsp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"

	"github.com/FlorianSauer/fragstore/cmn/cos"
	"github.com/golang/glog"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Options controls how Save/Load frame the encoded payload.
type Options struct {
	Checksum bool // append/verify a trailing SHA-256 of the JSON payload
}

// Opts is implemented by types that know their own persistence Options.
type Opts interface {
	JspOpts() Options
}

// SaveMeta saves v using the Options it reports for itself.
func SaveMeta(filepath string, meta Opts, v interface{}) error {
	return Save(filepath, v, meta.JspOpts())
}

// Save encodes v as JSON and writes it to filepath atomically: encode into
// a sibling temp file, fsync, close, then rename over the destination. The
// temp file is removed if encoding or flushing fails.
func Save(filepath string, v interface{}, opts Options) (err error) {
	tmp := filepath + ".tmp." + cos.GenTie()
	file, err := cos.CreateFile(tmp)
	if err != nil {
		return err
	}
	defer func() {
		if err == nil {
			return
		}
		if rmErr := cos.RemoveFile(tmp); rmErr != nil {
			glog.Errorf("nested (%v): failed to remove %s: %v", err, tmp, rmErr)
		}
	}()

	if err = Encode(file, v, opts); err != nil {
		glog.Errorf("failed to encode %s: %v", filepath, err)
		cos.Close(file)
		return err
	}
	if err = cos.FlushClose(file); err != nil {
		glog.Errorf("failed to flush and close %s: %v", tmp, err)
		return err
	}
	return os.Rename(tmp, filepath)
}

// LoadMeta loads into v using the Options it reports for itself.
func LoadMeta(filepath string, meta Opts) error {
	return Load(filepath, meta, meta.JspOpts())
}

// Load reads and decodes filepath into v, verifying the trailing checksum
// when opts.Checksum is set. A checksum mismatch removes the corrupt file
// and returns *cos.ErrBadCksum.
func Load(filepath string, v interface{}, opts Options) error {
	file, err := os.Open(filepath)
	if err != nil {
		return err
	}
	defer file.Close()

	err = Decode(file, v, opts)
	var badCksum *cos.ErrBadCksum
	if errors.As(err, &badCksum) {
		if rmErr := os.Remove(filepath); rmErr == nil {
			glog.Errorf("bad checksum: removed %s", filepath)
		} else {
			glog.Errorf("bad checksum: failed to remove %s: %v", filepath, rmErr)
		}
	}
	return err
}

// Encode writes v as JSON to w. When opts.Checksum is set the payload is
// preceded by a 4-byte big-endian length prefix and followed by a 32-byte
// SHA-256 of the JSON payload.
func Encode(w io.Writer, v interface{}, opts Options) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if !opts.Checksum {
		_, err = w.Write(payload)
		return err
	}
	cksum := cos.SHA256(payload)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	_, err = w.Write(cksum.Bytes())
	return err
}

// Decode reads and unmarshals v from r, verifying the checksum framing
// written by Encode when opts.Checksum is set.
func Decode(r io.Reader, v interface{}, opts Options) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if !opts.Checksum {
		return json.Unmarshal(raw, v)
	}
	if len(raw) < 4+cos.SizeofSHA256 {
		return errors.New("jsp: truncated file")
	}
	payloadLen := binary.BigEndian.Uint32(raw[:4])
	rest := raw[4:]
	if uint32(len(rest)) < payloadLen+cos.SizeofSHA256 {
		return errors.New("jsp: truncated file")
	}
	payload := rest[:payloadLen]
	trailer := rest[payloadLen : payloadLen+cos.SizeofSHA256]
	actual := cos.SHA256(payload)
	if !bytes.Equal(actual.Bytes(), trailer) {
		var expected cos.Cksum
		copy(expected[:], trailer)
		return &cos.ErrBadCksum{Expected: expected, Actual: actual, What: "jsp file"}
	}
	return json.Unmarshal(payload, v)
}
