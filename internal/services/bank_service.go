package services

import (
	"encoding/json"
	"net/http"
)

// Bank is one supported payout destination.
type Bank struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

var payoutBanks = []Bank{
	{Code: "002", Name: "Bank Rakyat Indonesia"},
	{Code: "008", Name: "Bank Mandiri"},
	{Code: "009", Name: "Bank Negara Indonesia"},
	{Code: "011", Name: "Bank Danamon"},
	{Code: "013", Name: "Bank Permata"},
	{Code: "014", Name: "Bank Central Asia"},
	{Code: "016", Name: "Maybank Indonesia"},
	{Code: "019", Name: "Panin Bank"},
	{Code: "022", Name: "CIMB Niaga"},
	{Code: "028", Name: "OCBC Indonesia"},
	{Code: "153", Name: "Bank Sinarmas"},
	{Code: "200", Name: "Bank Tabungan Negara"},
	{Code: "213", Name: "Bank BTPN"},
	{Code: "451", Name: "Bank Syariah Indonesia"},
	{Code: "490", Name: "Bank Neo Commerce"},
	{Code: "501", Name: "Bank Digital BCA"},
	{Code: "542", Name: "Bank Jago"},
}

// BankService serves the catalogue of banks withdrawals may be paid out to.
type BankService struct {
	byCode map[string]Bank
}

func NewBankService() *BankService {
	byCode := make(map[string]Bank, len(payoutBanks))
	for _, b := range payoutBanks {
		byCode[b.Code] = b
	}
	return &BankService{byCode: byCode}
}

// IsSupported reports whether code names a bank withdrawals can settle to.
func (bs *BankService) IsSupported(code string) bool {
	_, ok := bs.byCode[code]
	return ok
}

// GetAllBanks lists supported payout banks
// @Summary List payout banks
// @Description List the banks withdrawal requests may be paid out to
// @Tags banks
// @Produce json
// @Success 200 {array} Bank
// @Router /banks [get]
func (bs *BankService) GetAllBanks(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	json.NewEncoder(w).Encode(payoutBanks)
}
