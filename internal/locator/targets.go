// internal/locator/targets.go
package locator

import (
	"fmt"
	"strings"
)

// MustOrdered is Ordered for static tables. It panics on an invalid table.
func MustOrdered(target string, candidates ...Candidate) Set {
	s, err := Ordered(target, candidates...)
	if err != nil {
		panic(err)
	}
	return s
}

// DecoyTokens identify the knowledge-search control that shares the search
// button's wording in the page header.
var DecoyTokens = []string{"KNOS"}

// SearchKeywords score header controls when every declared search candidate is exhausted.
var SearchKeywords = []string{"search", "submit"}

// -- Browse navigation --

var ContentTypesTab = MustOrdered("content_types_tab",
	ID("tab3"),
	XPath(`//li[@role="tab"][contains(text(), "Content types")]`),
	XPath(`//*[@role="tab" and contains(text(), "Content types")]`),
	Text("li::Content types"),
	Text("a::Content types"),
	Text("button::Content types"),
)

var DocketsOption = MustOrdered("dockets_option",
	Text("span::Dockets"),
	Text("div::Dockets"),
	Text("a::Dockets"),
	Text("button::Dockets"),
	Text("label::Dockets"),
	Text("=Dockets"),
	Text("Docket"),
)

// -- Search --

var IdentifierInput = MustOrdered("docket_number_input",
	ID("co_search_advancedSearch_DN"),
	Name("co_search_advancedSearch_DN"),
	XPath(`//label[contains(text(), "Docket Number")]/..//input`),
)

var SearchSubmit = MustOrdered("search_submit",
	ID("searchButton"),
	XPath(`//button[@id="searchButton"]`),
	Text("button::Search Westlaw Precision"),
	CSS(`header button[aria-label="Search"]`),
	CSS(`nav button[aria-label="Search"]`),
)

// SearchScope bounds fallback enumeration for the search control to the page header.
var SearchScope = MustOrdered("search_scope",
	CSS("header"),
	CSS(`[role="banner"]`),
	ID("co_header"),
	CSS("nav"),
)

var OverlayClose = MustOrdered("overlay_close",
	CSS(`button[aria-label*="Close"]`),
	Text("button::Close"),
)

// -- Alerts --

var AlertMenu = MustOrdered("alert_menu",
	ID("co_search_alertMenuLink"),
	XPath(`//button[@id="co_search_alertMenuLink"]`),
	CSS(`[aria-label="Create Alert menu"]`),
)

var CreateAlert = MustOrdered("create_alert",
	Text("a::Create Docket Alert"),
	Text("button::Create Docket Alert"),
	Text("Create Docket Alert"),
)

var (
	AlertName        = MustOrdered("alert_name", ID("optionsAlertName"))
	AlertDescription = MustOrdered("alert_description", ID("optionsAlertDescription"))
	BasicsContinue   = MustOrdered("basics_continue", ID("co_button_continue_Basics"))
	AllContentTab    = MustOrdered("all_content_tab", XPath(`//button[@role="tab"][@aria-controls="All_Content"]`))
	ContentContinue  = MustOrdered("content_continue", ID("co_button_continue_Content"))
	NewFilingsOption = MustOrdered("new_filings_option", ID("co_search_alertMeToNewFilings"))
	SearchContinue   = MustOrdered("search_continue", ID("co_button_continue_Search"))
	ContactsWidget   = MustOrdered("contacts_widget", ID("coid_contacts_addedContactsInput_co_collaboratorWidget"))
	ContactsInput    = MustOrdered("contacts_input", ID("coid_contacts_autoSuggest_input"))
	DeliveryContinue = MustOrdered("delivery_continue", ID("co_button_continue_Delivery"))
	FrequencySelect  = MustOrdered("frequency_select", ID("frequencySelect"))
	SaveAlert        = MustOrdered("save_alert", ID("co_button_saveAlert"))
)

// AlertTimeCheckboxes maps the offered delivery times to their checkbox ids.
var AlertTimeCheckboxes = map[string]string{
	"5am":  "amExecutionTime5",
	"12pm": "pmExecutionTime12",
	"3pm":  "pmExecutionTime3",
	"5pm":  "pmExecutionTime5",
}

// AlertFrequencies are the values accepted by the frequency select.
var AlertFrequencies = []string{"daily", "weekdays", "weekly", "biweekly", "monthly"}

// AlertTimeCheckbox returns the single-candidate set for a delivery time.
func AlertTimeCheckbox(slot string) (Set, error) {
	id, ok := AlertTimeCheckboxes[strings.ToLower(slot)]
	if !ok {
		return Set{}, fmt.Errorf("%w: unknown alert time '%s'", ErrInvalidCandidate, slot)
	}
	return Ordered("alert_time_"+strings.ToLower(slot), ID(id))
}

// -- Sign-in and environment setup --

var Username = MustOrdered("username",
	ID("Username"),
	Name("Username"),
	CSS(`input[type="text"]`),
	Name("username"),
	ID("username"),
	CSS(`input[name*="user"]`),
)

var Password = MustOrdered("password",
	ID("Password"),
	Name("Password"),
	CSS(`input[type="password"]`),
	Name("password"),
	ID("password"),
)

var SignIn = MustOrdered("sign_in",
	ID("SignIn"),
	Name("SignIn"),
	XPath(`//button[@type="submit"][@id="SignIn"]`),
	Text("button::Sign in"),
	Text("button::Sign In"),
	CSS(`button[type="submit"]`),
	XPath(`//input[@value="Sign in"]`),
	XPath(`//input[@value="Sign In"]`),
	CSS(`input[type="submit"]`),
)

var ClientID = MustOrdered("client_id",
	ID("co_clientIDTextbox"),
	Name("clientIdTextbox"),
	CSS("input.co_clientIDTextbox"),
	CSS(`input[name*="client"]`),
	CSS(`input[placeholder*="client"]`),
)

var ClientIDContinue = MustOrdered("client_id_continue",
	ID("co_clientIDContinueButton"),
	CSS("input.co_primaryBtn"),
	XPath(`//input[@value="Start new session"]`),
	Text("button::Start new session"),
	XPath(`//button[contains(., "new session")]`),
)

var GatewaySelect = MustOrdered("gateway_select",
	CSS(`select[name*="gateway"]`),
	CSS(`select[name*="Gateway"]`),
	Name("GatewayLive"),
	Name("gatewayLive"),
	XPath(`//td[contains(text(), "Gateway Live")]/following-sibling::td//select`),
)

var IACField = MustOrdered("iac_field",
	XPath(`//tr[contains(., "IAC to be turned OFF")]//textarea`),
	XPath(`//td[contains(text(), "IAC to be turned OFF")]/preceding-sibling::td//textarea`),
	XPath(`(//label[contains(text(), "Infrastructure Access Controls")]/../following::textarea)[2]`),
)

var IACSave = MustOrdered("iac_save",
	XPath(`//input[@value="Save Changes and Sign On"]`),
	Text("button::Save Changes and Sign On"),
	XPath(`//input[contains(@value, "Save")]`),
)

// -- Dynamic tables --

// subJurisdictionPaths holds the browse paths known to be stable for a state.
var subJurisdictionPaths = map[string]string{
	"California": "/Browse/Home/Dockets/CaliforniaStateFederalDockets",
	"New York":   "/Browse/Home/Dockets/NewYorkStateFederalDockets",
	"Texas":      "/Browse/Home/Dockets/TexasStateFederalDockets",
}

// CategoryLink builds the candidate table for a docket category heading.
func CategoryLink(category string) (Set, error) {
	if err := checkLabel("category", category); err != nil {
		return Set{}, err
	}
	return Ordered("category_link",
		Text("a::="+category),
		Text("="+category),
		Text(category),
	)
}

// SubJurisdictionLink builds the candidate table for a state link. Known browse
// paths are tried before any text match.
func SubJurisdictionLink(name string) (Set, error) {
	if err := checkLabel("sub-jurisdiction", name); err != nil {
		return Set{}, err
	}
	var cs []Candidate
	if path, ok := subJurisdictionPaths[name]; ok {
		cs = append(cs, CSS(fmt.Sprintf(`a[href*="%s"]`, path)))
	}
	cs = append(cs, Text("a::="+name), Text("a::"+name), Text(name))
	return Ordered("sub_jurisdiction_link", cs...)
}

// SubRegionLink builds the candidate table for a district link within a state.
func SubRegionLink(subJurisdiction, region string) (Set, error) {
	if err := checkLabel("sub-jurisdiction", subJurisdiction); err != nil {
		return Set{}, err
	}
	if err := checkLabel("sub-region", region); err != nil {
		return Set{}, err
	}
	href := districtHref(subJurisdiction, region)
	return Ordered("sub_region_link",
		XPath(fmt.Sprintf(`//a[contains(@href, "%s")]`, href)),
		CSS(fmt.Sprintf(`a[href*="%s"]`, href)),
		Text("a::="+region),
		Text("a::"+region),
		Text(region),
	)
}

// districtHref derives the district browse path fragment, e.g.
// "CaliforniaFederalDistrictCourtDocketsCentralDistrict".
func districtHref(subJurisdiction, region string) string {
	compact := func(s string) string { return strings.Join(strings.Fields(s), "") }
	return compact(subJurisdiction) + "FederalDistrictCourtDockets" + compact(region)
}

func checkLabel(kind, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidCandidate, kind)
	}
	if strings.ContainsAny(v, `"'`) {
		return fmt.Errorf("%w: %s '%s' contains quotes", ErrInvalidCandidate, kind, v)
	}
	return nil
}

// Named returns the static tables by target name.
func Named() map[string]Set {
	out := make(map[string]Set)
	for _, s := range []Set{
		ContentTypesTab, DocketsOption, IdentifierInput, SearchSubmit, SearchScope, OverlayClose,
		AlertMenu, CreateAlert, AlertName, AlertDescription, BasicsContinue, AllContentTab,
		ContentContinue, NewFilingsOption, SearchContinue, ContactsWidget, ContactsInput,
		DeliveryContinue, FrequencySelect, SaveAlert, Username, Password, SignIn, ClientID,
		ClientIDContinue, GatewaySelect, IACField, IACSave,
	} {
		out[s.Target] = s
	}
	return out
}
