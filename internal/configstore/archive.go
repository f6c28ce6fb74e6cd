package configstore

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"

	"github.com/easynet-cn/batata/internal/apierr"
)

// manifestEntry describes one exported config file within the archive.
type manifestEntry struct {
	Group  string `json:"group"`
	DataID string `json:"dataId"`
	Type   string `json:"type"`
	MD5    string `json:"md5"`
	File   string `json:"file"`
}

type manifest struct {
	Namespace string          `json:"namespace"`
	Entries   []manifestEntry `json:"entries"`
}

func archiveFileName(group, dataID string) string {
	return group + "/" + dataID
}

// ExportZip emits an archive of every entry in namespace (optionally
// restricted to group), with a manifest and one file per config.
func (s *Store) ExportZip(ctx context.Context, namespace, group string) ([]byte, error) {
	rows, _, err := s.entries.List(ctx, namespace, group, 0, 0)
	if err != nil {
		return nil, apierr.Internal(err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	man := manifest{Namespace: namespace}
	for _, e := range rows {
		name := archiveFileName(e.Group, e.DataID)
		w, err := zw.Create(name)
		if err != nil {
			return nil, apierr.Internal(err)
		}
		if _, err := w.Write([]byte(e.Content)); err != nil {
			return nil, apierr.Internal(err)
		}
		man.Entries = append(man.Entries, manifestEntry{
			Group: e.Group, DataID: e.DataID, Type: e.Type, MD5: e.MD5, File: name,
		})
	}

	manBytes, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return nil, apierr.Internal(err)
	}
	mw, err := zw.Create("manifest.json")
	if err != nil {
		return nil, apierr.Internal(err)
	}
	if _, err := mw.Write(manBytes); err != nil {
		return nil, apierr.Internal(err)
	}

	if err := zw.Close(); err != nil {
		return nil, apierr.Internal(err)
	}
	return buf.Bytes(), nil
}

// ImportZip applies every entry in an archive built by ExportZip, through
// the normal Publish path so each applied change gets its event and
// history record.
func (s *Store) ImportZip(ctx context.Context, namespace string, data []byte, policy ImportPolicy) (ImportReport, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ImportReport{}, apierr.InvalidArgument("invalid archive: %v", err)
	}

	var man manifest
	manFile, err := zr.Open("manifest.json")
	if err != nil {
		return ImportReport{}, apierr.InvalidArgument("archive missing manifest.json")
	}
	if err := json.NewDecoder(manFile).Decode(&man); err != nil {
		manFile.Close()
		return ImportReport{}, apierr.InvalidArgument("invalid manifest: %v", err)
	}
	manFile.Close()

	report := ImportReport{}
	for _, entry := range man.Entries {
		key := Key{Namespace: namespace, Group: entry.Group, DataID: entry.DataID}

		f, err := zr.Open(entry.File)
		if err != nil {
			report.Failed = append(report.Failed, key)
			if policy == ImportAbort {
				report.Aborted = true
				return report, nil
			}
			continue
		}
		var content bytes.Buffer
		if _, err := content.ReadFrom(f); err != nil {
			f.Close()
			report.Failed = append(report.Failed, key)
			if policy == ImportAbort {
				report.Aborted = true
				return report, nil
			}
			continue
		}
		f.Close()

		_, getErr := s.entries.Get(ctx, key.Namespace, key.Group, key.DataID)
		exists := getErr == nil
		if exists && policy == ImportSkip {
			report.Skipped = append(report.Skipped, key)
			continue
		}
		if exists && policy == ImportAbort {
			report.Aborted = true
			return report, nil
		}

		if err := s.Publish(ctx, key, content.String(), entry.Type); err != nil {
			report.Failed = append(report.Failed, key)
			if policy == ImportAbort {
				report.Aborted = true
				return report, nil
			}
			continue
		}
		report.Published = append(report.Published, key)
	}

	return report, nil
}
