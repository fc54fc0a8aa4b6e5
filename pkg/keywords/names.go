package keywords

// Name is a semantic keyword name known to this system. Names are translated
// to the document store's keyword type names by a Translator.
type Name string

// Generated and direct keyword names.
const (
	AgentName               Name = "agent_name"
	ParentSystemID          Name = "parent_system_id"
	AgentSystemID           Name = "agent_system_id"
	LinkedRecordSystemID    Name = "linked_record_system_id"
	RecordIdentifier        Name = "record_identifier"
	EventProcessingPlanDate Name = "event_processing_plan_date"
	AccessionDate           Name = "accession_date"
	CatalogLocation         Name = "catalog_location_keyword"
	ConservationNumber      Name = "conservation_number_keyword"
	LoanEndDate             Name = "loan_end_date_keyword"
	FindingAidUseStartDate  Name = "finding_aid_use_start_date_keyword"
	FindingAidUseEndDate    Name = "finding_aid_use_end_date_keyword"
	ExampleAlpha20          Name = "example_alpha_20_keyword"
	ExampleDate             Name = "example_date_keyword"
	ExampleAlpha250         Name = "example_alpha_250_keyword"
)

// Reserved marker names.
//
// NotGenerated and PotentialDateKeys never reach the wire: the value of a pair
// carrying one of them is the wire type name of a keyword to watch.
// FileName is a real keyword holding the original upload filename.
const (
	NotGenerated      Name = "not_generated"
	PotentialDateKeys Name = "potential_date_keys"
	FileName          Name = "file_name_keyword"
)

// KnownNames lists every name a translation table must resolve.
var KnownNames = []Name{
	AgentName,
	ParentSystemID,
	AgentSystemID,
	LinkedRecordSystemID,
	RecordIdentifier,
	EventProcessingPlanDate,
	AccessionDate,
	CatalogLocation,
	ConservationNumber,
	LoanEndDate,
	FindingAidUseStartDate,
	FindingAidUseEndDate,
	ExampleAlpha20,
	ExampleDate,
	ExampleAlpha250,
	FileName,
}

// IsMarker reports whether n is a watch marker rather than a keyword.
func (n Name) IsMarker() bool {
	return n == NotGenerated || n == PotentialDateKeys
}

func (n Name) String() string {
	return string(n)
}

func isKnown(n Name) bool {
	for _, k := range KnownNames {
		if k == n {
			return true
		}
	}
	return false
}
