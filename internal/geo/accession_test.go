package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchivePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		accession string
		want      string
	}{
		{
			accession: "GSE12345",
			want:      "geo/series/GSE12nnn/GSE12345/soft/GSE12345_family.soft.gz",
		},
		{
			accession: "GSE000000",
			want:      "geo/series/GSE000nnn/GSE000000/soft/GSE000000_family.soft.gz",
		},
		{
			accession: "GSE1",
			want:      "geo/series/Gnnn/GSE1/soft/GSE1_family.soft.gz",
		},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ArchivePath(tc.accession))
	}
}

func TestArchivePathReplacesFinalThreeDigits(t *testing.T) {
	t.Parallel()

	// The subdirectory is always the accession with its last three
	// characters replaced by "nnn".
	for _, acc := range []string{"GSE100", "GSE4521", "GSE98765", "GSE123456"} {
		bucket := seriesBucket(acc)
		require.Equal(t, acc[:len(acc)-3]+"nnn", bucket)
	}
}

func TestArchiveURL(t *testing.T) {
	t.Parallel()

	got := ArchiveURL("ftp.ncbi.nlm.nih.gov", "GSE12345")
	assert.Equal(t,
		"https://ftp.ncbi.nlm.nih.gov/geo/series/GSE12nnn/GSE12345/soft/GSE12345_family.soft.gz",
		got)
}

func TestJobStatusTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, JobInProgress.Terminal())
	assert.True(t, JobSuccessful.Terminal())
	assert.True(t, JobFailed.Terminal())
	assert.True(t, JobCancelled.Terminal())
}
