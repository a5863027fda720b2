package arf

import (
	"errors"
	"fmt"
	"time"

	log "github.com/golang/glog"

	"github.com/robert-malhotra/go-arf/hdf5"
)

// LogName is the name of the root-level log table.
const LogName = "log"

// Log appends msg to the file log with the current time.
func (f *File) Log(msg string) error {
	ts := Now()
	return f.LogAt(msg, ts.Sec, ts.Usec)
}

// LogAt appends msg to the file log with the given time, creating the log
// on first use.
func (f *File) LogAt(msg string, sec, usec int64) error {
	pt, err := f.logTable()
	if err != nil {
		return err
	}
	defer pt.Close()
	err = pt.Append([]LogMessage{{Sec: sec, Usec: usec, Msg: msg}})
	if errors.Is(err, hdf5.ErrTypeMismatch) {
		return fmt.Errorf("%w: %w", ErrBadLog, err)
	}
	return err
}

func (f *File) logTable() (*hdf5.PacketTable, error) {
	kind, err := f.Kind(LogName)
	switch {
	case errors.Is(err, hdf5.ErrNotFound):
		t, err := hdf5.TypeOf(LogMessage{})
		if err != nil {
			return nil, err
		}
		pt, err := f.CreatePacketTable(LogName, t)
		if err != nil {
			return nil, err
		}
		log.V(1).Infof("created log in %s", f.Filename())
		return pt, nil
	case err != nil:
		return nil, err
	case kind != hdf5.KindDataset:
		return nil, fmt.Errorf("%w: found a %s", ErrBadLog, kind)
	}
	pt, err := f.OpenPacketTable(LogName)
	if errors.Is(err, hdf5.ErrInvalidArgument) {
		return nil, fmt.Errorf("%w: %w", ErrBadLog, err)
	}
	return pt, err
}

// ReadLog returns every message in the file log. A file without a log has
// no messages.
func (f *File) ReadLog() ([]LogMessage, error) {
	kind, err := f.Kind(LogName)
	switch {
	case errors.Is(err, hdf5.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	case kind != hdf5.KindDataset:
		return nil, fmt.Errorf("%w: found a %s", ErrBadLog, kind)
	}
	d, err := f.OpenDataset(LogName)
	if err != nil {
		return nil, err
	}
	defer d.Close()
	var msgs []LogMessage
	if err := d.Read(&msgs); err != nil {
		if errors.Is(err, hdf5.ErrTypeMismatch) {
			return nil, fmt.Errorf("%w: %w", ErrBadLog, err)
		}
		return nil, err
	}
	return msgs, nil
}

// Time returns the message time.
func (m LogMessage) Time() time.Time {
	return Timestamp{Sec: m.Sec, Usec: m.Usec}.Time()
}
