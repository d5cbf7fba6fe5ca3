// Package checksum 实现 IPv4/ICMP/PWOSPF 使用的 16 位反码校验和
package checksum

import "encoding/binary"

// PWOSPF 头部中参与校验的字范围（按 16 位字计数，含首不含尾）
const (
	PWOSPFFirstWord = 8
	PWOSPFLastWord  = 12
	// PWOSPFChecksumOffset 校验和字段在 PWOSPF 头部中的字节偏移
	PWOSPFChecksumOffset = 12
)

// sum 按大端 16 位字累加，奇数长度时末字节补零
func sum(data []byte, acc uint32) uint32 {
	n := len(data)
	for i := 0; i+1 < n; i += 2 {
		acc += uint32(binary.BigEndian.Uint16(data[i:]))
	}
	if n%2 == 1 {
		acc += uint32(data[n-1]) << 8
	}
	return acc
}

// Fold 将进位折叠回低 16 位
func Fold(acc uint32) uint16 {
	for acc>>16 != 0 {
		acc = (acc & 0xffff) + (acc >> 16)
	}
	return uint16(acc)
}

// Sum 计算 data 的互联网校验和，调用方需保证校验和字段已清零
func Sum(data []byte) uint16 {
	return ^Fold(sum(data, 0))
}

// Valid 判断包含校验和字段在内的区域累加结果是否为 0xFFFF
func Valid(data []byte) bool {
	return Fold(sum(data, 0)) == 0xffff
}

// pwospfRegion 返回受保护的字区间
func pwospfRegion(header []byte) []byte {
	end := PWOSPFLastWord * 2
	if len(header) < end {
		end = len(header) &^ 1
	}
	start := PWOSPFFirstWord * 2
	if start >= end {
		return nil
	}
	return header[start:end]
}

// PWOSPF 计算 PWOSPF 头部校验和。
// 只累加第 8..11 个 16 位字（认证数据），与现网路由器保持一致；这并不是完整报文校验。
func PWOSPF(header []byte) uint16 {
	return ^Fold(sum(pwospfRegion(header), 0))
}

// ValidPWOSPF 校验受保护区间与校验和字段之和是否为 0xFFFF
func ValidPWOSPF(header []byte) bool {
	if len(header) < PWOSPFLastWord*2 {
		return false
	}
	acc := sum(pwospfRegion(header), 0)
	acc += uint32(binary.BigEndian.Uint16(header[PWOSPFChecksumOffset:]))
	return Fold(acc) == 0xffff
}

// SetIPv4 重新计算 IPv4 头部校验和并写回
func SetIPv4(header []byte) {
	ihl := int(header[0]&0x0f) * 4
	if ihl < 20 || ihl > len(header) {
		return
	}
	header[10], header[11] = 0, 0
	binary.BigEndian.PutUint16(header[10:], Sum(header[:ihl]))
}

// ValidIPv4 校验 IPv4 头部校验和
func ValidIPv4(header []byte) bool {
	if len(header) < 20 {
		return false
	}
	ihl := int(header[0]&0x0f) * 4
	if ihl < 20 || ihl > len(header) {
		return false
	}
	return Valid(header[:ihl])
}
