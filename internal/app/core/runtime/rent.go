package runtime

// AccountStorageOverhead 每個帳戶除了資料外額外計入租金的 bytes
const AccountStorageOverhead = 128

// Rent 免租金最低餘額的計算參數
type Rent struct {
	LamportsPerByteYear uint64
	ExemptionThreshold  float64
}

// DefaultRent 主網的預設值
func DefaultRent() Rent {
	return Rent{
		LamportsPerByteYear: 3480,
		ExemptionThreshold:  2.0,
	}
}

// MinimumBalance 回傳 dataLen bytes 的帳戶免租金所需的最低 lamports
func (r Rent) MinimumBalance(dataLen int) uint64 {
	bytes := uint64(AccountStorageOverhead + dataLen)
	return uint64(float64(bytes*r.LamportsPerByteYear) * r.ExemptionThreshold)
}
