package soft

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JetBrains-Research/pubtrends-datasets/internal/geo"
)

// Separator joins flattened multi-valued fields the way GEOmetadb does.
const Separator = ";\t"

// contactFields lists the contact sub-fields in the fixed order they are
// concatenated into the contact block. Absent fields are omitted entirely.
var contactFields = []struct {
	key   string
	label string
}{
	{"contact_name", "Name"},
	{"contact_email", "Email"},
	{"contact_department", "Department"},
	{"contact_laboratory", "Laboratory"},
	{"contact_institute", "Institute"},
	{"contact_city", "City"},
	{"contact_zip/postal_code", "Zip/Postal Code"},
	{"contact_country", "Country"},
	{"contact_phone", "Phone"},
}

// Normalize converts raw SOFT metadata into a canonical series record.
// Multi-valued fields collapse to their first element, except the contributor
// list which is joined in order. A PubMed ID that does not parse as an
// integer is logged and dropped rather than failing the record.
func Normalize(meta Metadata, logger *zap.Logger) geo.Series {
	if logger == nil {
		logger = zap.NewNop()
	}
	first := func(key string) string {
		if values := meta[key]; len(values) > 0 {
			return values[0]
		}
		return ""
	}

	s := geo.Series{
		Accession:         first("geo_accession"),
		Title:             first("title"),
		Status:            first("status"),
		SubmissionDate:    first("submission_date"),
		LastUpdateDate:    first("last_update_date"),
		Summary:           first("summary"),
		Type:              first("type"),
		WebLink:           first("web_link"),
		OverallDesign:     first("overall_design"),
		Repeats:           first("repeats"),
		RepeatsSample:     first("repeats_sample_list"),
		Variable:          first("variable"),
		VariableDesc:      first("variable_description"),
		SupplementaryFile: first("supplementary_file"),
	}

	if raw := first("pubmed_id"); raw != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			logger.Warn("invalid PubMed ID",
				zap.String("accession", s.Accession),
				zap.String("pubmed_id", raw))
		} else {
			s.PubMedID = &id
		}
	}

	s.Contact = formatContact(meta)
	if contributors := meta["contributor"]; len(contributors) > 0 {
		s.Contributor = strings.Join(contributors, Separator)
	}
	return s
}

func formatContact(meta Metadata) string {
	var segments []string
	for _, field := range contactFields {
		if values := meta[field.key]; len(values) > 0 && values[0] != "" {
			segments = append(segments, fmt.Sprintf("%s: %s", field.label, values[0]))
		}
	}
	return strings.Join(segments, Separator)
}
