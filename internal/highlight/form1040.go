package highlight

import "github.com/formsage/formsage/internal/core/domain"

// form1040Fields is the field catalog for the standard IRS Form 1040
// layout (Letter size, 612 x 792 points). Coordinates are in PDF points
// with a top-left origin: [x0, top, x1, bottom]. Several keys may map to
// the same field so common phrasings resolve without fuzzy matching.
var form1040Fields = []struct {
	key   string
	page  int
	bbox  domain.BoundingBox
	label string
}{
	// Page 1
	{"first name", 1, domain.BoundingBox{32, 126, 282, 140}, "Your first name and middle initial"},
	{"name", 1, domain.BoundingBox{32, 126, 282, 140}, "Your first name and middle initial"},
	{"last name", 1, domain.BoundingBox{282, 126, 430, 140}, "Last name"},
	{"ssn", 1, domain.BoundingBox{430, 126, 580, 140}, "Your social security number"},
	{"social security", 1, domain.BoundingBox{430, 126, 580, 140}, "Your social security number"},
	{"social security number", 1, domain.BoundingBox{430, 126, 580, 140}, "Your social security number"},
	{"spouse name", 1, domain.BoundingBox{32, 140, 282, 155}, "Spouse's first name and middle initial (if joint return)"},
	{"spouse ssn", 1, domain.BoundingBox{430, 140, 580, 155}, "Spouse's social security number"},
	{"address", 1, domain.BoundingBox{32, 157, 395, 172}, "Home address (number and street)"},
	{"home address", 1, domain.BoundingBox{32, 157, 395, 172}, "Home address (number and street)"},
	{"city", 1, domain.BoundingBox{32, 175, 250, 190}, "City, town, or post office"},
	{"state", 1, domain.BoundingBox{335, 175, 395, 190}, "State"},
	{"zip", 1, domain.BoundingBox{400, 175, 470, 190}, "ZIP code"},
	{"zip code", 1, domain.BoundingBox{400, 175, 470, 190}, "ZIP code"},
	{"filing status", 1, domain.BoundingBox{32, 215, 560, 265}, "Filing Status"},
	{"single", 1, domain.BoundingBox{108, 218, 280, 230}, "Filing Status - Single"},
	{"married filing jointly", 1, domain.BoundingBox{108, 230, 380, 242}, "Filing Status - Married filing jointly"},
	{"dependents", 1, domain.BoundingBox{32, 325, 580, 400}, "Dependents section"},
	{"wages", 1, domain.BoundingBox{400, 415, 580, 428}, "Line 1a - Total amount from Form(s) W-2, box 1"},
	{"w-2", 1, domain.BoundingBox{400, 415, 580, 428}, "Line 1a - Wages from W-2"},
	{"interest", 1, domain.BoundingBox{400, 465, 580, 478}, "Line 2b - Taxable interest"},
	{"dividends", 1, domain.BoundingBox{400, 488, 580, 500}, "Line 3b - Ordinary dividends"},
	{"ira", 1, domain.BoundingBox{400, 500, 580, 513}, "Line 4b - IRA distributions (taxable amount)"},
	{"adjusted gross income", 1, domain.BoundingBox{400, 555, 580, 568}, "Line 11 - Adjusted gross income"},
	{"agi", 1, domain.BoundingBox{400, 555, 580, 568}, "Line 11 - Adjusted gross income"},
	{"standard deduction", 1, domain.BoundingBox{400, 572, 580, 585}, "Line 12 - Standard deduction or itemized deductions"},
	{"deduction", 1, domain.BoundingBox{400, 572, 580, 585}, "Line 12 - Standard deduction or itemized deductions"},
	{"taxable income", 1, domain.BoundingBox{400, 600, 580, 613}, "Line 15 - Taxable income"},

	// Page 2
	{"tax", 2, domain.BoundingBox{400, 65, 580, 78}, "Line 16 - Tax"},
	{"child tax credit", 2, domain.BoundingBox{400, 105, 580, 118}, "Line 19 - Child tax credit / other dependent credit"},
	{"total tax", 2, domain.BoundingBox{400, 178, 580, 191}, "Line 24 - Total tax"},
	{"withholding", 2, domain.BoundingBox{400, 205, 580, 218}, "Line 25d - Federal income tax withheld"},
	{"federal tax withheld", 2, domain.BoundingBox{400, 205, 580, 218}, "Line 25d - Federal income tax withheld"},
	{"estimated tax", 2, domain.BoundingBox{400, 222, 580, 235}, "Line 26 - Estimated tax payments"},
	{"earned income credit", 2, domain.BoundingBox{400, 235, 580, 248}, "Line 27 - Earned income credit (EIC)"},
	{"eic", 2, domain.BoundingBox{400, 235, 580, 248}, "Line 27 - Earned income credit (EIC)"},
	{"refund", 2, domain.BoundingBox{400, 295, 580, 308}, "Line 34 - Refund amount"},
	{"amount you owe", 2, domain.BoundingBox{400, 340, 580, 353}, "Line 37 - Amount you owe"},
	{"signature", 2, domain.BoundingBox{32, 395, 350, 430}, "Your signature"},
	{"routing number", 2, domain.BoundingBox{180, 308, 310, 321}, "Line 35b - Routing number"},
	{"account number", 2, domain.BoundingBox{350, 308, 530, 321}, "Line 35d - Account number"},
	{"bank account", 2, domain.BoundingBox{180, 295, 530, 321}, "Lines 35b-35d - Direct deposit info"},
	{"direct deposit", 2, domain.BoundingBox{180, 295, 530, 321}, "Lines 35b-35d - Direct deposit info"},
	{"occupation", 2, domain.BoundingBox{32, 430, 200, 443}, "Your occupation"},
}
