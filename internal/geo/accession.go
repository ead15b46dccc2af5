package geo

import "fmt"

// ArchivePath returns the mirror path for a series' family SOFT archive.
// GEO partitions series directories by replacing the last three digits of the
// accession with "nnn", e.g. GSE12345 -> geo/series/GSE12nnn/GSE12345/soft/.
func ArchivePath(accession string) string {
	return fmt.Sprintf("geo/series/%s/%s/soft/%s_family.soft.gz",
		seriesBucket(accession), accession, accession)
}

// ArchiveURL returns the full HTTPS download URL for a series archive on the
// given mirror host.
func ArchiveURL(host, accession string) string {
	return fmt.Sprintf("https://%s/%s", host, ArchivePath(accession))
}

func seriesBucket(accession string) string {
	if len(accession) < 3 {
		return "nnn"
	}
	return accession[:len(accession)-3] + "nnn"
}
