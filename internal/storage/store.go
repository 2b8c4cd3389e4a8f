package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/springmagic/internal/anim"
	"github.com/san-kum/springmagic/internal/dynamo"
	"github.com/san-kum/springmagic/internal/sim"
)

// ErrNoChannel is returned for a channel name Channel does not know.
var ErrNoChannel = errors.New("storage: unknown channel")

// Channels are the columns of keys.csv after bone and frame.
var Channels = []string{
	"loc_x", "loc_y", "loc_z",
	"rot_w", "rot_x", "rot_y", "rot_z",
	"scale_x", "scale_y", "scale_z",
}

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID         string             `json:"id"`
	Scene      string             `json:"scene"`
	Armature   string             `json:"armature"`
	Timestamp  time.Time          `json:"timestamp"`
	Start      int                `json:"start"`
	End        int                `json:"end"`
	FPS        float64            `json:"fps"`
	Integrator string             `json:"integrator"`
	Params     dynamo.Params      `json:"params"`
	Chains     int                `json:"chains"`
	Baked      int                `json:"baked"`
	Bones      []string           `json:"bones"`
	Warnings   []string           `json:"warnings,omitempty"`
	Metrics    map[string]float64 `json:"metrics"`
}

// Save writes a bake as a new run directory. meta.ID, Timestamp and the
// fields taken from the result are filled in.
func (s *Store) Save(meta RunMetadata, res *sim.Result) (string, error) {
	meta.Timestamp = time.Now()
	base := fmt.Sprintf("%s_%d", meta.Scene, meta.Timestamp.Unix())
	runID := base
	for n := 2; ; n++ {
		if _, err := os.Stat(filepath.Join(s.baseDir, runID)); os.IsNotExist(err) {
			break
		}
		runID = fmt.Sprintf("%s-%d", base, n)
	}
	runDir := filepath.Join(s.baseDir, runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta.ID = runID
	meta.Start, meta.End = res.Start, res.End
	meta.Chains, meta.Baked = res.Report.Chains, res.Report.Baked
	meta.Bones = res.BoneNames()
	meta.Warnings = res.Report.Lines()
	meta.Metrics = res.Metrics

	metaFile, err := os.Create(filepath.Join(runDir, "metadata.json"))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, "keys.csv"))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	w := csv.NewWriter(csvFile)
	if err := w.Write(append([]string{"bone", "frame"}, Channels...)); err != nil {
		return "", err
	}
	for _, bk := range res.Bones {
		for _, kf := range bk.Keys {
			if err := w.Write(keyRow(bk.Bone, kf)); err != nil {
				return "", err
			}
		}
	}
	w.Flush()
	return runID, w.Error()
}

func keyRow(bone string, kf anim.Keyframe) []string {
	k := kf.Key
	vals := []float64{
		k.Loc[0], k.Loc[1], k.Loc[2],
		k.Rot.W, k.Rot.V[0], k.Rot.V[1], k.Rot.V[2],
		k.Scale[0], k.Scale[1], k.Scale[2],
	}
	row := make([]string, 0, len(vals)+2)
	row = append(row, bone, strconv.Itoa(kf.Frame))
	for _, v := range vals {
		row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
	}
	return row
}

// List returns every readable run, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].Timestamp.After(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadKeys reads keys.csv back, bones in file order.
func (s *Store) LoadKeys(runID string) ([]sim.BoneKeys, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, "keys.csv"))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = len(Channels) + 2
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	var out []sim.BoneKeys
	index := make(map[string]int)
	for line, record := range records {
		if line == 0 {
			continue
		}
		kf, err := parseRow(record)
		if err != nil {
			return nil, fmt.Errorf("keys.csv line %d: %w", line+1, err)
		}
		i, ok := index[record[0]]
		if !ok {
			i = len(out)
			index[record[0]] = i
			out = append(out, sim.BoneKeys{Bone: record[0]})
		}
		out[i].Keys = append(out[i].Keys, kf)
	}
	return out, nil
}

func parseRow(record []string) (anim.Keyframe, error) {
	frame, err := strconv.Atoi(record[1])
	if err != nil {
		return anim.Keyframe{}, err
	}
	v := make([]float64, len(Channels))
	for i := range v {
		if v[i], err = strconv.ParseFloat(record[i+2], 64); err != nil {
			return anim.Keyframe{}, err
		}
	}
	return anim.Keyframe{
		Frame: frame,
		Key: anim.Key{
			Loc:   mgl64.Vec3{v[0], v[1], v[2]},
			Rot:   mgl64.Quat{W: v[3], V: mgl64.Vec3{v[4], v[5], v[6]}},
			Scale: mgl64.Vec3{v[7], v[8], v[9]},
		},
	}, nil
}

// Channel extracts one column of one bone as frames and values, ready to
// plot.
func (s *Store) Channel(runID, bone, channel string) ([]float64, []float64, error) {
	col := -1
	for i, c := range Channels {
		if c == channel {
			col = i
		}
	}
	if col < 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrNoChannel, channel)
	}
	all, err := s.LoadKeys(runID)
	if err != nil {
		return nil, nil, err
	}
	for _, bk := range all {
		if bk.Bone != bone {
			continue
		}
		frames := make([]float64, len(bk.Keys))
		values := make([]float64, len(bk.Keys))
		for i, kf := range bk.Keys {
			frames[i] = float64(kf.Frame)
			values[i] = channelValue(kf.Key, col)
		}
		return frames, values, nil
	}
	return nil, nil, fmt.Errorf("run %s has no keys for bone %s", runID, bone)
}

func channelValue(k anim.Key, col int) float64 {
	switch {
	case col < 3:
		return k.Loc[col]
	case col == 3:
		return k.Rot.W
	case col < 7:
		return k.Rot.V[col-4]
	}
	return k.Scale[col-7]
}
