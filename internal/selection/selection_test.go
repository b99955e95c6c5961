package selection

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civitdl/pkg/types"
)

// scriptedPrompter replays answers and records prompts.
type scriptedPrompter struct {
	answers  []string
	confirms []bool
	prompts  int
	asked    []string
	notes    []string
}

func (s *scriptedPrompter) PresentChoices(title string, header []string, rows [][]string) (string, error) {
	if s.prompts >= len(s.answers) {
		return "", errors.New("no more answers")
	}
	a := s.answers[s.prompts]
	s.prompts++
	return a, nil
}

func (s *scriptedPrompter) Confirm(prompt string) (bool, error) {
	s.asked = append(s.asked, prompt)
	if len(s.confirms) == 0 {
		return false, nil
	}
	c := s.confirms[0]
	s.confirms = s.confirms[1:]
	return c, nil
}

func (s *scriptedPrompter) Notify(msg string) { s.notes = append(s.notes, msg) }

func day(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }

func modelFile() types.File { return types.File{ID: 1, Name: "m.safetensors", Type: "Model", SizeKB: 2048} }

func fixture() types.Model {
	return types.Model{
		Name: "Fixture",
		ModelVersions: []types.Version{
			{ID: 10, Name: "v1.0", CreatedAt: day(1), Files: []types.File{modelFile()}},
			{ID: 30, Name: "v3.0 Turbo", CreatedAt: day(20), Files: []types.File{modelFile()}},
			{ID: 20, Name: "v2.0", CreatedAt: day(10), Files: []types.File{modelFile()}},
			{ID: 40, Name: "Online", CreatedAt: day(5)},
		},
	}
}

func TestLatestPicksMaxTimestampRegardlessOfOrder(t *testing.T) {
	m := fixture()
	got, err := ChooseVersions(m, false, "latest", nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(30), got[0].ID)

	// reversed API order
	for i, j := 0, len(m.ModelVersions)-1; i < j; i, j = i+1, j-1 {
		m.ModelVersions[i], m.ModelVersions[j] = m.ModelVersions[j], m.ModelVersions[i]
	}
	got, err = ChooseVersions(m, true, "LATEST", &scriptedPrompter{})
	require.NoError(t, err)
	assert.Equal(t, int64(30), got[0].ID)
}

func TestExplicitNameMatchOrder(t *testing.T) {
	m := fixture()
	cases := map[string]int64{
		"v2.0":  20, // exact
		"V3":    30, // prefix
		"turbo": 30, // substring
		"v1.0":  10,
	}
	for name, want := range cases {
		got, err := ChooseVersions(m, false, name, nil)
		require.NoError(t, err, name)
		assert.Equal(t, want, got[0].ID, name)
	}
}

func TestExactBeatsPrefix(t *testing.T) {
	versions := []types.Version{
		{ID: 1, Name: "v2 beta"},
		{ID: 2, Name: "v2"},
	}
	v, ok := FindVersionByName(versions, "v2")
	require.True(t, ok)
	assert.Equal(t, int64(2), v.ID)
}

func TestExplicitNameNotFoundListsAvailable(t *testing.T) {
	_, err := ChooseVersions(fixture(), false, "v9", nil)
	require.Error(t, err)
	var vnf *VersionNotFoundError
	require.ErrorAs(t, err, &vnf)
	assert.ElementsMatch(t, []string{"v1.0", "v2.0", "v3.0 Turbo", "Online"}, vnf.Available)
	assert.True(t, IsVersionNotFound(err))
}

func TestNonInteractivePicksNewestEvenIfGenerationOnly(t *testing.T) {
	m := types.Model{ModelVersions: []types.Version{
		{ID: 1, Name: "old", CreatedAt: day(1), Files: []types.File{modelFile()}},
		{ID: 2, Name: "gen", CreatedAt: day(2)},
	}}
	got, err := ChooseVersions(m, false, "", nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].ID)
}

func TestNoVersions(t *testing.T) {
	_, err := ChooseVersions(types.Model{}, false, "", nil)
	assert.ErrorIs(t, err, ErrNoVersions)
}

func TestInteractiveMultiSelectNewestFirst(t *testing.T) {
	p := &scriptedPrompter{answers: []string{"1, 2"}}
	got, err := ChooseVersions(fixture(), true, "", p)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// newest first: v3.0 Turbo, v2.0, Online, v1.0
	assert.Equal(t, int64(30), got[0].ID)
	assert.Equal(t, int64(20), got[1].ID)
	assert.Empty(t, p.asked)
}

func TestInteractiveGenerationOnlyRequiresConfirmation(t *testing.T) {
	// "Online" (zero files) is third newest.
	declined := &scriptedPrompter{answers: []string{"3"}, confirms: []bool{false}}
	_, err := ChooseVersions(fixture(), true, "", declined)
	assert.ErrorIs(t, err, ErrNothingSelected)
	require.Len(t, declined.asked, 1)
	assert.Contains(t, declined.asked[0], "Online")

	accepted := &scriptedPrompter{answers: []string{"3,1"}, confirms: []bool{true}}
	got, err := ChooseVersions(fixture(), true, "", accepted)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(40), got[0].ID)
	assert.Equal(t, int64(30), got[1].ID)
	assert.Len(t, accepted.asked, 1)
}

func TestInteractiveRepromptsOnInvalidAnswer(t *testing.T) {
	p := &scriptedPrompter{answers: []string{"9", "abc", "2"}}
	got, err := ChooseVersions(fixture(), true, "", p)
	require.NoError(t, err)
	assert.Equal(t, int64(20), got[0].ID)
	assert.Equal(t, 3, p.prompts)
	assert.Len(t, p.notes, 2)
}

func TestInteractiveQuit(t *testing.T) {
	_, err := ChooseVersions(fixture(), true, "", &scriptedPrompter{answers: []string{"q"}})
	assert.ErrorIs(t, err, ErrCanceled)
}

func TestIsGenerationOnly(t *testing.T) {
	cases := []struct {
		name string
		v    types.Version
		want bool
	}{
		{"no files", types.Version{}, true},
		{"phrase", types.Version{Description: "This is <b>Generation Only</b>", Files: []types.File{modelFile()}}, true},
		{"phrase2", types.Version{Description: "Not available for download.", Files: []types.File{modelFile()}}, true},
		{"only training data", types.Version{Files: []types.File{{Type: "Training Data"}, {Type: "Config"}}}, true},
		{"pruned model", types.Version{Files: []types.File{{Type: "Config"}, {Type: "Pruned Model"}}}, false},
		{"lora lowercase", types.Version{Files: []types.File{{Type: "lora"}}}, false},
		{"model", types.Version{Files: []types.File{modelFile()}}, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, IsGenerationOnly(c.v), c.name)
	}
}

func TestChooseFiles(t *testing.T) {
	_, err := ChooseFiles(nil, false, nil)
	assert.ErrorIs(t, err, ErrNoDownloadableFiles)

	single := []types.File{{ID: 1}}
	got, err := ChooseFiles(single, true, &scriptedPrompter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), got[0].ID)

	files := []types.File{{ID: 1}, {ID: 2, Primary: true}, {ID: 3}}
	got, err = ChooseFiles(files, false, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].ID)

	got, err = ChooseFiles([]types.File{{ID: 5}, {ID: 6}}, false, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got[0].ID)

	got, err = ChooseFiles(files, true, &scriptedPrompter{answers: []string{"3,1"}})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].ID)
	assert.Equal(t, int64(1), got[1].ID)
}

func TestParseIndices(t *testing.T) {
	got, err := ParseIndices(" 2, 1,2 ", 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, got)

	got, err = ParseIndices("1-3", 4)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, got)

	for _, bad := range []string{"", "0", "4", "x", "3-1", ",", "1-9"} {
		_, err := ParseIndices(bad, 3)
		var ise *InvalidSelectionError
		assert.ErrorAs(t, err, &ise, bad)
	}
	_, err = ParseIndices("Q", 3)
	assert.ErrorIs(t, err, ErrCanceled)
}

func TestVersionRowAndFormatting(t *testing.T) {
	v := types.Version{
		Name:          "v1",
		BaseModelType: "Standard",
		TrainedWords:  []string{"a", "b"},
		DownloadCount: 1234567,
		Files:         []types.File{{SizeKB: 2 * 1024 * 1024, Type: "Model"}},
	}
	row := versionRow(0, v)
	assert.Equal(t, []string{"1", "✅", "v1", "2.0 GiB", "1,234,567", "2 trained words"}, row)
	assert.Equal(t, "999", formatCount(999))
	assert.Equal(t, "1,000", formatCount(1000))
	assert.Equal(t, "?", formatKB(0))
}

func TestChooseModel(t *testing.T) {
	_, err := ChooseModel(nil, true, &scriptedPrompter{})
	assert.ErrorIs(t, err, ErrNoResults)

	results := []types.Model{{ID: 1, Name: "A"}, {ID: 2, Name: "B"}, {ID: 3, Name: "C"}}
	m, err := ChooseModel(results, false, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.ID)

	p := &scriptedPrompter{answers: []string{"3,1"}}
	m, err = ChooseModel(results, true, p)
	require.NoError(t, err)
	assert.Equal(t, int64(3), m.ID)

	_, err = ChooseModel(results, true, &scriptedPrompter{answers: []string{"quit"}})
	assert.ErrorIs(t, err, ErrCanceled)
}
