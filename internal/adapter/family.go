package adapter

import (
	"fmt"

	"dario.cat/mergo"

	"github.com/law-makers/plancrawl/internal/extract"
	"github.com/law-makers/plancrawl/internal/session"
)

// idoxRow builds an optional template for one row of an Idox details table.
func idoxRow(label, field string) *extract.Template {
	return extract.MustCompile(`<tr><th>` + label + `</th><td>{{ ` + field + ` }}</td></tr>`)
}

func idoxDefaults() Config {
	block := extract.MustCompile(`<div id="pa">{{ block|html }}</div>`)
	noRecs := extract.MustCompile(`<div class="messagebox">No results found</div>`)
	return Config{
		Kind:      KindDate,
		Backend:   session.BackendBrowser,
		SearchURL: "online-applications/search.do?action=advanced",
		Search: Search{
			Form:     "#advancedSearchForm",
			DateFrom: "date(applicationValidatedStart)",
			DateTo:   "date(applicationValidatedEnd)",
			Fields:   map[string]string{"searchType": "Application"},
		},
		Paging: Paging{
			IDs: extract.MustCompile(`<ul id="searchresults">
{* <li class="searchresult">
<a href="{{ [records].url|abs }}">{{ [records].description }}</a>
<p class="address">{{ [records].address }}</p>
<p class="metaInfo">Ref. No: {{ [records].uid }} <span class="divider">|</span>
Received: {{ [records].date_received }} <span class="divider">|</span>
Validated: {{ [records].date_validated }}</p>
</li> *}
</ul>`),
			OneID: extract.MustCompile(`<a id="subtab_summary" href="{{ url|abs }}"></a>
<table id="simpleDetailsTable"><tr><th>Reference</th><td>{{ uid }}</td></tr></table>`),
			MaxRecs:  extract.MustCompile(`<span class="showing">Showing {{ first }}-{{ last }} of {{ max_recs }}</span>`),
			NextLink: extract.MustCompile(`<a class="next" href="{{ next_link|abs }}"></a>`),
			NoRecs:   noRecs,
		},
		Detail: extract.Detail{
			Block: block,
			Min: extract.MustCompile(`<table id="simpleDetailsTable">
<tr><th>Reference</th><td>{{ reference }}</td></tr>
<tr><th>Address</th><td>{{ address }}</td></tr>
<tr><th>Proposal</th><td>{{ description }}</td></tr>
</table>`),
			Optional: []*extract.Template{
				idoxRow("Alternative Reference", "alt_reference"),
				idoxRow("Application Received", "date_received"),
				idoxRow("Application Validated", "date_validated"),
				idoxRow("Status", "status"),
				idoxRow("Decision", "decision"),
				idoxRow("Decision Issued Date", "decision_issued_date"),
				idoxRow("Appeal Status", "appeal_status"),
				idoxRow("Appeal Decision", "appeal_decision"),
			},
		},
		DatesLink: extract.MustCompile(`<a id="subtab_dates" href="{{ dates_link|abs }}"></a>`),
		Dates: extract.Detail{
			Block: block,
			Optional: []*extract.Template{
				idoxRow("Application Received Date", "date_received"),
				idoxRow("Application Validated Date", "date_validated"),
				idoxRow("Standard Consultation Expiry Date", "consultation_end_date"),
				idoxRow("Neighbour Consultation Expiry Date", "neighbour_consultation_end_date"),
				idoxRow("Latest Advertisement Expiry Date", "last_advertised_date"),
				idoxRow("Decision Made Date", "decision_date"),
				idoxRow("Permission Expiry Date", "permission_expires_date"),
				idoxRow("Determination Deadline", "target_decision_date"),
			},
		},
		InfoLink: extract.MustCompile(`<a id="subtab_details" href="{{ info_link|abs }}"></a>`),
		Info: extract.Detail{
			Block: block,
			Optional: []*extract.Template{
				idoxRow("Application Type", "application_type"),
				idoxRow("Case Officer", "case_officer"),
				idoxRow("Parish", "parish"),
				idoxRow("Ward", "ward_name"),
				idoxRow("Applicant Name", "applicant_name"),
				idoxRow("Agent Name", "agent_name"),
				idoxRow("Environmental Assessment Requested", "environmental_assessment"),
			},
		},
		Absent: extract.MustCompile(`<div class="messagebox">could not be found</div>`),
		UIDSearch: UIDSearch{
			URL:   "online-applications/search.do?action=simple&searchType=Application",
			Form:  "#simpleSearchForm",
			Field: "searchCriteria.simpleSearchString",
			Link:  extract.MustCompile(`<li class="searchresult"><a href="{{ url|abs }}"></a></li>`),
			Self:  extract.MustCompile(`<a id="subtab_summary" href="{{ url|abs }}"></a>`),
		},
	}
}

func planningExplorerDefaults() Config {
	row := func(label, field string) *extract.Template {
		return extract.MustCompile(`<li><span>` + label + `</span>{{ ` + field + ` }}</li>`)
	}
	return Config{
		Kind:      KindDate,
		Backend:   session.BackendBrowser,
		SearchURL: "Northgate/PlanningExplorer/GeneralSearch.aspx",
		Search: Search{
			Form:     "#M3Form",
			Submit:   "csbtnSearch",
			DateFrom: "dateStart",
			DateTo:   "dateEnd",
			Fields:   map[string]string{"rbGroup": "rbDay", "cboSelectDateValue": "DATE_RECEIVED"},
		},
		Paging: Paging{
			IDs: extract.MustCompile(`<table class="display_table">
{* <tr><td><a href="{{ [records].url|abs }}">{{ [records].uid }}</a></td>
<td>{{ [records].address }}</td><td>{{ [records].description }}</td></tr> *}
</table>`),
			NextLink: extract.MustCompile(`<a class="noborder" href="{{ next_link|abs }}"><img title="Go to next page"></a>`),
			NoRecs:   extract.MustCompile(`<div id="M3Results">No results found</div>`),
		},
		Detail: extract.Detail{
			Block: extract.MustCompile(`<div class="dataview">{{ block|html }}</div>`),
			Min: extract.MustCompile(`<ul>
<li><span>Application Number</span>{{ reference }}</li>
<li><span>Site Address</span>{{ address }}</li>
<li><span>Proposal</span>{{ description }}</li>
</ul>`),
			Optional: []*extract.Template{
				row("Application Registered", "date_validated"),
				row("Application Received", "date_received"),
				row("Application Type", "application_type"),
				row("Current Status", "status"),
				row("Applicant", "applicant_name"),
				row("Agent", "agent_name"),
				row("Wards", "ward_name"),
				row("Parishes", "parish"),
				row("Case Officer", "case_officer"),
				row("Decision", "decision"),
				row("Decision Date", "decision_date"),
			},
		},
		DetailPage: "Northgate/PlanningExplorer/Generic/StdDetails.aspx?PT=Planning%20Applications%20On-Line&TYPE=PL/PlanningPK.xml&PARAM0={{ query .UID }}&XSLT=/Northgate/PlanningExplorer/SiteFiles/Skins/Default/xslt/PL/PLDetails.xslt&FT=Planning%20Application%20Details&PUBLIC=Y&XMLSIDE=/Northgate/PlanningExplorer/SiteFiles/Skins/Default/Menus/PL.xml&DAURI=PLANNING",
	}
}

func northgateTelerikDefaults() Config {
	return Config{
		Kind:      KindDate,
		Backend:   session.BackendBrowser,
		SearchURL: "PlanningSearch/Search.aspx",
		Search: Search{
			Form:     "0",
			Submit:   "ctl00$MainContent$btnSearch",
			DateFrom: "ctl00$MainContent$dateFrom$dateInput",
			DateTo:   "ctl00$MainContent$dateTo$dateInput",
		},
		Paging: Paging{
			IDs: extract.MustCompile(`<table class="rgMasterTable">
{* <tr class="rgRow"><td><a href="{{ [records].url|abs }}">{{ [records].uid }}</a></td>
<td>{{ [records].address }}</td></tr> *}
</table>`),
			MaxPages:   extract.MustCompile(`<div class="rgInfoPart">in {{ max_pages }} pages</div>`),
			NextSubmit: "ctl00$MainContent$grdResults$ctl00$ctl03$ctl01$ctl28",
			NoRecs:     extract.MustCompile(`<div class="rgNoRecords">No records</div>`),
		},
		Detail: extract.Detail{
			Block: extract.MustCompile(`<div id="ctl00_MainContent_pnlDetails">{{ block|html }}</div>`),
			Min: extract.MustCompile(`<dl>
<dt>Reference</dt><dd>{{ reference }}</dd>
<dt>Location</dt><dd>{{ address }}</dd>
<dt>Proposal</dt><dd>{{ description }}</dd>
</dl>`),
			Optional: []*extract.Template{
				extract.MustCompile(`<dt>Received</dt><dd>{{ date_received }}</dd>`),
				extract.MustCompile(`<dt>Valid</dt><dd>{{ date_validated }}</dd>`),
				extract.MustCompile(`<dt>Status</dt><dd>{{ status }}</dd>`),
				extract.MustCompile(`<dt>Decision</dt><dd>{{ decision }}</dd>`),
			},
		},
	}
}

func civicaDefaults() Config {
	return Config{
		Kind:    KindDate,
		Backend: session.BackendPlain,
		JSON: JSONSpec{
			SearchURL: "civica/Resource/Civica/Handler.ashx/keyobject/pagedsearch?from={{ query .From }}&to={{ query .To }}&page={{ .Page }}",
			PageSize:  50,
			DetailURL: "civica/Resource/Civica/Handler.ashx/keyobject/detail?ref={{ query .UID }}",
		},
	}
}

func familyDefaults(f Family) (Config, bool) {
	switch f {
	case FamilyIdox:
		return idoxDefaults(), true
	case FamilyPlanningExplorer:
		return planningExplorerDefaults(), true
	case FamilyNorthgateTelerik:
		return northgateTelerikDefaults(), true
	case FamilyCivica:
		return civicaDefaults(), true
	}
	return Config{}, false
}

// mergeFamily fills every field the authority left unset from its family
// defaults. Values the authority sets always win.
func (c *Config) mergeFamily() error {
	def, ok := familyDefaults(c.Family)
	if !ok {
		return nil
	}
	if err := mergo.Merge(c, def, mergo.WithoutDereference); err != nil {
		return fmt.Errorf("%s: merge %s defaults: %w", c.Authority, c.Family, err)
	}
	return nil
}
