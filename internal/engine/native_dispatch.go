//go:build speechsdk

package engine

/*
#include <stdint.h>
*/
import "C"

import "github.com/nupi-ai/plugin-stt-azure-speech/internal/spx"

//export spxGoDispatch
func spxGoDispatch(category C.int, source, event, box C.uintptr_t) {
	nativeDispatch(spx.Category(category), spx.Handle(source), spx.Handle(event), uintptr(box))
}
