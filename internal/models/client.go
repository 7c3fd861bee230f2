package models

import (
	"time"
)

// Client is one imported CRM record keyed by its trading code.
type Client struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	TradingCode string `gorm:"size:100;uniqueIndex;not null" json:"tradingCode"`

	Owner           string `json:"owner"`
	Name            string `gorm:"index" json:"name"`
	MobileNo        string `json:"mobileNo"`
	EmailID         string `gorm:"column:email_id;index" json:"emailId"`
	DPClientID      string `gorm:"column:dp_client_id" json:"dpClientId"`
	BranchCode      string `json:"branchCode"`
	RMTLCode        string `gorm:"column:rmtl_code" json:"rmtlCode"`
	InvestorType    string `json:"investorType"`
	AccountOpenDate string `json:"accountOpenDate"`
	AccountStatus   string `json:"accountStatus"`
	FirstTradeDate  string `json:"firstTradeDate"`
	HoldingValue    string `json:"holdingValue"`
	LedgerBalance   string `json:"ledgerBalance"`
	LastTradeDate   string `json:"lastTradeDate"`
	YTDBrok         string `gorm:"column:ytd_brok" json:"ytdBrok"`
	ActiveExchange  string `json:"activeExchange"`
	POADDPI         string `gorm:"column:poa_ddpi" json:"poaDdpi"`
	Nominee         string `json:"nominee"`
	AnnualIncome    string `json:"annualIncome"`
	Occupation      string `json:"occupation"`
	City            string `gorm:"index" json:"city"`
	State           string `json:"state"`
	LastLoginDate   string `json:"lastLoginDate"`

	// Calling workflow
	CallingStatus         string `gorm:"size:100;default:'New'" json:"callingStatus"`
	ReEYCDoneDate         string `gorm:"column:re_eyc_done_date" json:"reEycDoneDate"`
	DemoRequiredDate      string `json:"demoRequiredDate"`
	FundReceivedAmount    string `json:"fundReceivedAmount"`
	FundReceivedDate      string `json:"fundReceivedDate"`
	TradeDoneDate         string `json:"tradeDoneDate"`
	FundNotReceivedReason string `json:"fundNotReceivedReason"`
	CallbackDate          string `json:"callbackDate"`
	NotInterestedReason   string `json:"notInterestedReason"`
	WrongNumberAlternate  string `json:"wrongNumberAlternate"`
	DPValue               string `gorm:"column:dp_value" json:"dpValue"`
	NotMappedReason       string `json:"notMappedReason"`
	NextFollowUpDate      string `json:"nextFollowUpDate"`
	Remarks               string `gorm:"type:text" json:"remarks"`

	IsRead       bool      `gorm:"default:false;index" json:"isRead"`
	UploadedBy   *uint     `json:"uploadedBy"`
	UploadedAt   time.Time `gorm:"index" json:"uploadedAt"`
	LastModified time.Time `json:"lastModified"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TableName specifies the table name for Client
func (Client) TableName() string {
	return "clients"
}

// Set assigns a business field by its JSON key. It reports false for unknown keys.
func (c *Client) Set(key, value string) bool {
	f, ok := fieldIndex[key]
	if !ok {
		return false
	}
	*f.ref(c) = value
	return true
}

// Values returns every business field keyed by JSON key.
func (c *Client) Values() map[string]string {
	out := make(map[string]string, len(clientFields))
	for _, f := range clientFields {
		out[f.Key] = *f.ref(c)
	}
	return out
}

// NewClient builds a client from canonical field values. Unknown keys are ignored.
func NewClient(values map[string]string, uploadedBy *uint, now time.Time) *Client {
	c := &Client{
		UploadedBy:   uploadedBy,
		UploadedAt:   now,
		LastModified: now,
	}
	for k, v := range values {
		c.Set(k, v)
	}
	return c
}

// ClientStats summarises the client table.
type ClientStats struct {
	TotalClients  int64 `json:"totalClients"`
	RecentUploads int64 `json:"recentUploads"`
	TotalColumns  int   `json:"totalColumns"`
}
