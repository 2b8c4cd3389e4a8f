package storage

import (
	"encoding/json"
	"io"
	"os"
)

type ExportData struct {
	Run   RunMetadata  `json:"run"`
	Bones []ExportBone `json:"bones"`
}

type ExportBone struct {
	Name   string      `json:"name"`
	Frames []int       `json:"frames"`
	Values [][]float64 `json:"values"`
}

// Export writes a run, metadata and keys, as one JSON document.
func (s *Store) Export(w io.Writer, runID string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	keys, err := s.LoadKeys(runID)
	if err != nil {
		return err
	}

	data := ExportData{Run: *meta, Bones: make([]ExportBone, len(keys))}
	for i, bk := range keys {
		b := ExportBone{Name: bk.Bone}
		for _, kf := range bk.Keys {
			row := make([]float64, len(Channels))
			for c := range Channels {
				row[c] = channelValue(kf.Key, c)
			}
			b.Frames = append(b.Frames, kf.Frame)
			b.Values = append(b.Values, row)
		}
		data.Bones[i] = b
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// ExportFile is Export into a new file at path.
func (s *Store) ExportFile(path, runID string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return s.Export(file, runID)
}
