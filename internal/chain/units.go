package chain

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ToSmallestUnit 将结算资产数量转换为链上最小单位整数。
// 转换在十进制定点数上进行，不经过浮点往返。
func ToSmallestUnit(amount decimal.Decimal, decimals int32) *big.Int {
	shifted := amount.Shift(decimals)
	// 低于最小单位的尾数直接截断
	return shifted.Truncate(0).BigInt()
}

// ToSmallestUnitFloat float64入口，内部仍走十进制定点转换
func ToSmallestUnitFloat(amount float64, decimals int32) *big.Int {
	return ToSmallestUnit(decimal.NewFromFloat(amount), decimals)
}

// FromSmallestUnit 将链上最小单位整数转换为资产数量
func FromSmallestUnit(units *big.Int, decimals int32) decimal.Decimal {
	if units == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(units, 0).Shift(-decimals)
}

// FormatAmount 人类可读的金额表示
func FormatAmount(units *big.Int, decimals int32, symbol string) string {
	return fmt.Sprintf("%s %s", FromSmallestUnit(units, decimals).String(), symbol)
}
