package cdp

// keyBinding is the page-side function the key script reports through.
const keyBinding = "__linkgrabberKey"

// keyScript reports the modifier key held on the page. Releasing it or
// leaving the window clears the signal.
const keyScript = `(() => {
  if (window.__linkgrabberKeyHooked) return;
  window.__linkgrabberKeyHooked = true;
  const send = (key) => {
    try { window.__linkgrabberKey(key); } catch (e) {}
  };
  window.addEventListener("keydown", (e) => send(e.key), true);
  window.addEventListener("keyup", () => send(""), true);
  window.addEventListener("blur", () => send(""), true);
})();`
