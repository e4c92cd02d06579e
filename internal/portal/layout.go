// Package portal drives the DVSA booking site: login, centre selection,
// calendar layout and confirmation scraping.
package portal

import (
	"github.com/example/slotbot/internal/booking"
	"github.com/example/slotbot/internal/browser"
)

var (
	css   = browser.CSS
	xpath = browser.XPath
)

// Login and booking form.
var (
	startButton    = css("a.govuk-button")
	userIDInput    = css("input[name='user_id']")
	passwordInput  = css("input[name='password']")
	loginSubmit    = css("button[type='submit']")
	signedInNotice = xpath("//h1[contains(normalize-space(.), 'You are already signed in')]")
	staySignedIn   = css("input#confirm-Stay")
	continueButton = css("button#continue")
	searchForm     = css("form#slotSearchCommand")
	categorySelect = css("#businessBookingTestCategoryRecordId")
	favCentres     = css("#favtestcentres")
	instructor     = css("select[name='businessSlotSearchCriteria.instructorPRN']")
	noSpecialNeeds = css("#specialNeedsChoice-noneeds")
	submitSearch   = css("#submitSlotSearch")
)

// Centre management.
var (
	removeCentre = css("a.deleteIcon[id*='removeTestCentre_']")
	centreInput  = css("input#auto-add_testcentre")
	centreSelect = css("select#add_testcentre")
	addCentre    = css("input#submitAddAdditionalTestCentre")
)

const noInstructor = "-1"

// Reservation views.
var (
	dismissReserved = css("a#submitDismissReservedSlotMessage")
	returnToSearch  = xpath("//a[contains(normalize-space(.), 'Return to search results')]")
)

// Calendar is the weekly slot grid. Slot lookups go from the portal's own
// markup to looser matches in case the markup shifts.
func Calendar() booking.Calendar {
	return booking.Calendar{
		WeekHeader:   css("div.span-7 p.centre.bold"),
		PreviousWeek: css("a#searchForWeeklySlotsPreviousWeek"),
		NextWeek:     css("a#searchForWeeklySlotsNextAvailable"),
		Slots: []booking.Strategy{
			{Name: "class", Selector: css("td.day.slotsavailable a")},
			{Name: "text", Selector: xpath("//td[contains(@class, 'day')]//a[contains(normalize-space(.), 'available')]")},
			{Name: "structural", Selector: css("table.calendar td.day:not(.nonavailable) a[href]")},
		},
	}
}

// Reserve lists reserve controls and the confirmation signals, in the order
// they are checked.
func Reserve() booking.ReserveLayout {
	return booking.ReserveLayout{
		Controls: []booking.Strategy{
			{Name: "slot_table", Selector: xpath("//table[@id='displaySlot']//a[contains(normalize-space(.), 'Reserve')]")},
			{Name: "link_text", Selector: xpath("//a[contains(normalize-space(.), 'Reserve')]")},
			{Name: "input", Selector: css("input[value*='Reserve']")},
			{Name: "button", Selector: xpath("//button[contains(normalize-space(.), 'Reserve')]")},
		},
		Signals: []booking.Strategy{
			{Name: "countdown", Selector: css("#minutesToTimeout")},
			{Name: "reserved_row", Selector: css("a[id*='releaseReservedSlot_']")},
			{Name: "confirmation_text", Selector: xpath("//*[contains(normalize-space(text()), 'reserved') or contains(normalize-space(text()), 'Reserved')]")},
		},
	}
}
