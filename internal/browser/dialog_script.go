package browser

// blockingDialogScript finds the top-most visible modal dialog that does not
// contain trigger and builds a selector for a control that closes it. It
// returns {found, title, close}; close is "" when the dialog has no
// recognisable close control.
func blockingDialogScript() string {
	return `(trigger) => {
		try {
			const isVisible = (el) => {
				const rect = el.getBoundingClientRect();
				const style = window.getComputedStyle(el);

				return rect.width > 0 &&
					rect.height > 0 &&
					style.display !== 'none' &&
					style.visibility !== 'hidden' &&
					parseFloat(style.opacity) > 0;
			};

			const candidates = Array.from(document.querySelectorAll(
				'.modal.show, .o_dialog .modal, [role="dialog"], [aria-modal="true"]'
			))
				.filter(isVisible)
				.filter((el) => !trigger || !el.contains(trigger));

			if (candidates.length === 0) {
				return {found: false, title: '', close: ''};
			}

			const dialog = candidates[candidates.length - 1];
			const titleEl = dialog.querySelector('.modal-title, h4, [role="heading"]');
			const title = titleEl ? (titleEl.innerText || '').trim().slice(0, 120) : '';

			const marker = 'data-rpa-dialog';
			document.querySelectorAll('[' + marker + ']').forEach((el) => el.removeAttribute(marker));
			dialog.setAttribute(marker, '1');
			const scope = '[' + marker + '="1"] ';

			const closeSelectors = [
				'.btn-close',
				'button.close',
				'[aria-label="Close"]',
				'[data-bs-dismiss="modal"]'
			];

			for (const sel of closeSelectors) {
				const el = dialog.querySelector(sel);
				if (el && isVisible(el) && !el.disabled) {
					return {found: true, title: title, close: scope + sel};
				}
			}

			return {found: true, title: title, close: ''};
		} catch (e) {
			return {found: false, title: '', close: ''};
		}
	}`
}
