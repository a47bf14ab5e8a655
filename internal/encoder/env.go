package encoder

import "worldmodel-rl/internal/env"

// EncodedEnv wraps a real environment so that its observations are latents,
// the same observation contract the synthetic environment exposes.
type EncodedEnv struct {
	Real    env.Env
	Encoder Encoder
	stack   *FrameStack
}

var _ env.Env = (*EncodedEnv)(nil)

func NewEncodedEnv(real env.Env, enc Encoder) *EncodedEnv {
	return &EncodedEnv{Real: real, Encoder: enc, stack: NewFrameStack(enc.Window())}
}

func (e *EncodedEnv) Reset() ([]float64, error) {
	obs, err := e.Real.Reset()
	if err != nil {
		return nil, err
	}
	e.stack.Reset(obs)
	return e.encode()
}

func (e *EncodedEnv) Step(action []float64) ([]float64, float64, bool, env.Info, error) {
	obs, reward, done, info, err := e.Real.Step(action)
	if err != nil {
		return nil, 0, false, nil, err
	}
	e.stack.Push(obs)
	latent, err := e.encode()
	if err != nil {
		return nil, 0, false, nil, err
	}
	return latent, reward, done, info, nil
}

func (e *EncodedEnv) encode() ([]float64, error) {
	out, err := e.Encoder.Encode([][]float64{e.stack.Stack()})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (e *EncodedEnv) ActionSpace() env.Space { return e.Real.ActionSpace() }

func (e *EncodedEnv) ObservationSpace() env.Space { return LatentSpace(e.Encoder.Dim()) }

// LatentSpace is the observation space of any environment that emits latents.
func LatentSpace(dim int) env.Box {
	return env.NewBox(dim, -10, 10)
}
