package models

// FieldInfo describes one business field of a Client.
type FieldInfo struct {
	Key    string                  // JSON key used by the API and filter conditions
	Column string                  // database column
	Label  string                  // human-readable label; empty when none is defined
	ref    func(c *Client) *string
}

// DisplayLabel returns the label, falling back to the raw key.
func (f FieldInfo) DisplayLabel() string {
	if f.Label == "" {
		return f.Key
	}
	return f.Label
}

var clientFields = []FieldInfo{
	{"tradingCode", "trading_code", "Trading Code", func(c *Client) *string { return &c.TradingCode }},
	{"owner", "owner", "Owner", func(c *Client) *string { return &c.Owner }},
	{"name", "name", "Name", func(c *Client) *string { return &c.Name }},
	{"mobileNo", "mobile_no", "Mobile No", func(c *Client) *string { return &c.MobileNo }},
	{"emailId", "email_id", "Email ID", func(c *Client) *string { return &c.EmailID }},
	{"dpClientId", "dp_client_id", "DP Client ID", func(c *Client) *string { return &c.DPClientID }},
	{"branchCode", "branch_code", "Branch Code", func(c *Client) *string { return &c.BranchCode }},
	{"rmtlCode", "rmtl_code", "RMTL Code", func(c *Client) *string { return &c.RMTLCode }},
	{"investorType", "investor_type", "Investor Type", func(c *Client) *string { return &c.InvestorType }},
	{"accountOpenDate", "account_open_date", "A/c Open Date", func(c *Client) *string { return &c.AccountOpenDate }},
	{"accountStatus", "account_status", "Account Status", func(c *Client) *string { return &c.AccountStatus }},
	{"firstTradeDate", "first_trade_date", "First Trade Date", func(c *Client) *string { return &c.FirstTradeDate }},
	{"holdingValue", "holding_value", "Holding Value", func(c *Client) *string { return &c.HoldingValue }},
	{"ledgerBalance", "ledger_balance", "Ledger Balance", func(c *Client) *string { return &c.LedgerBalance }},
	{"lastTradeDate", "last_trade_date", "Last Trade Date", func(c *Client) *string { return &c.LastTradeDate }},
	{"ytdBrok", "ytd_brok", "YTD Brok.", func(c *Client) *string { return &c.YTDBrok }},
	{"activeExchange", "active_exchange", "Active Exchange", func(c *Client) *string { return &c.ActiveExchange }},
	{"poaDdpi", "poa_ddpi", "POA/DDPI", func(c *Client) *string { return &c.POADDPI }},
	{"nominee", "nominee", "Nominee", func(c *Client) *string { return &c.Nominee }},
	{"annualIncome", "annual_income", "Annual Income", func(c *Client) *string { return &c.AnnualIncome }},
	{"occupation", "occupation", "Occupation", func(c *Client) *string { return &c.Occupation }},
	{"city", "city", "City", func(c *Client) *string { return &c.City }},
	{"state", "state", "State", func(c *Client) *string { return &c.State }},
	{"lastLoginDate", "last_login_date", "Last Login Date", func(c *Client) *string { return &c.LastLoginDate }},
	{"callingStatus", "calling_status", "Calling Status", func(c *Client) *string { return &c.CallingStatus }},
	{"reEycDoneDate", "re_eyc_done_date", "Re-EYC Done Date", func(c *Client) *string { return &c.ReEYCDoneDate }},
	{"demoRequiredDate", "demo_required_date", "Demo Required Date", func(c *Client) *string { return &c.DemoRequiredDate }},
	{"fundReceivedAmount", "fund_received_amount", "Fund Received Amount", func(c *Client) *string { return &c.FundReceivedAmount }},
	{"fundReceivedDate", "fund_received_date", "Fund Received Date", func(c *Client) *string { return &c.FundReceivedDate }},
	{"tradeDoneDate", "trade_done_date", "", func(c *Client) *string { return &c.TradeDoneDate }},
	{"fundNotReceivedReason", "fund_not_received_reason", "Fund Not Received Reason", func(c *Client) *string { return &c.FundNotReceivedReason }},
	{"callbackDate", "callback_date", "Callback Date", func(c *Client) *string { return &c.CallbackDate }},
	{"notInterestedReason", "not_interested_reason", "Not Interested Reason", func(c *Client) *string { return &c.NotInterestedReason }},
	{"wrongNumberAlternate", "wrong_number_alternate", "Wrong Number Alternate", func(c *Client) *string { return &c.WrongNumberAlternate }},
	{"dpValue", "dp_value", "DP Value", func(c *Client) *string { return &c.DPValue }},
	{"notMappedReason", "not_mapped_reason", "Not Mapped Reason", func(c *Client) *string { return &c.NotMappedReason }},
	{"nextFollowUpDate", "next_follow_up_date", "Next Follow up Date", func(c *Client) *string { return &c.NextFollowUpDate }},
	{"remarks", "remarks", "Remarks", func(c *Client) *string { return &c.Remarks }},
}

var fieldIndex = func() map[string]FieldInfo {
	idx := make(map[string]FieldInfo, len(clientFields))
	for _, f := range clientFields {
		idx[f.Key] = f
	}
	return idx
}()

// ClientFields returns the business fields in display order.
func ClientFields() []FieldInfo {
	out := make([]FieldInfo, len(clientFields))
	copy(out, clientFields)
	return out
}

// LookupField finds a business field by JSON key.
func LookupField(key string) (FieldInfo, bool) {
	f, ok := fieldIndex[key]
	return f, ok
}

// FieldLabel returns the human label for key, or key itself when unmapped.
func FieldLabel(key string) string {
	if f, ok := fieldIndex[key]; ok {
		return f.DisplayLabel()
	}
	return key
}
