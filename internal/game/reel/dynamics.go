package reel

import "math"

// 动力学常量（弧度/秒）
const (
	SpinningDecel    = 0.9
	StoppedDecel     = 2.2
	SnapThreshold    = 0.02
	StopKickVelocity = 0.5
)

// Dynamics 卷轴的展示用转动状态，与停轮时序无关
type Dynamics struct {
	Rotation float64 `json:"rotation"`
	Velocity float64 `json:"velocity"`
}

// SpinStartVelocity 第 i 个卷轴的起转速度
func SpinStartVelocity(i int) float64 {
	return math.Max(0, 10-0.6*float64(i))
}

// SpinFloorVelocity 第 i 个卷轴转动期间的最低速度
func SpinFloorVelocity(i int) float64 {
	return math.Max(0, 4.5-0.35*float64(i))
}

// Start 起转：设定起转速度，角度归一到一圈以内
func (d *Dynamics) Start(i int) {
	d.Velocity = SpinStartVelocity(i)
	d.Rotation = math.Mod(d.Rotation, 2*math.Pi)
}

// Kick 停轮时的余速
func (d *Dynamics) Kick() {
	d.Velocity = StopKickVelocity
}

// Settle 回到正对玩家的静止姿态
func (d *Dynamics) Settle() {
	d.Rotation = 0
	d.Velocity = 0
}

// Step 积分 dt 秒
func (d *Dynamics) Step(i int, spinning bool, dt float64) {
	if dt <= 0 {
		return
	}
	d.Rotation += d.Velocity * dt
	if spinning {
		d.Velocity = math.Max(SpinFloorVelocity(i), d.Velocity-SpinningDecel*dt)
		return
	}
	d.Velocity = math.Max(0, d.Velocity-StoppedDecel*dt)
	if d.Velocity < SnapThreshold {
		d.Velocity = 0
	}
}
