package domain

import (
	"github.com/gagliardetto/solana-go"
)

// BalanceAccountSeedPrefix 餘額帳戶 PDA 的第一個 seed
var BalanceAccountSeedPrefix = []byte("balance_account")

// BalanceAccountSeeds 回傳 ("balance_account", user, bump) seed 組合
func BalanceAccountSeeds(user solana.PublicKey, bump uint8) [][]byte {
	return [][]byte{BalanceAccountSeedPrefix, user.Bytes(), {bump}}
}

// DeriveBalanceAddress 以指定 bump 計算使用者餘額帳戶的地址
// 純函式：相同輸入永遠得到相同地址，任何驗證者都能重算
//
// 參數:
//
//	programID: 本程式地址
//	user: 使用者地址
//	bump: 避開 ed25519 曲線上點的 bump seed
//
// 回傳:
//
//	solana.PublicKey: 衍生地址
//	error: seeds 產生曲線上的點或 seed 過長
func DeriveBalanceAddress(programID, user solana.PublicKey, bump uint8) (solana.PublicKey, error) {
	return solana.CreateProgramAddress(BalanceAccountSeeds(user, bump), programID)
}

// FindBalanceAddress 從 255 往下搜尋第一個有效的 bump (client 端使用)
func FindBalanceAddress(programID, user solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{BalanceAccountSeedPrefix, user.Bytes()}, programID)
}
